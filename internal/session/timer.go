package session

import (
	"fmt"
	"time"
)

// stopwatch measures elapsed session time against an injectable clock.
// Stop freezes the reading; stopping twice keeps the first freeze.
type stopwatch struct {
	clock     func() time.Time
	startedAt time.Time
	stoppedAt *time.Time
}

func newStopwatch(clock func() time.Time) *stopwatch {
	return &stopwatch{clock: clock, startedAt: clock()}
}

func (s *stopwatch) Stop() {
	if s.stoppedAt != nil {
		return
	}
	t := s.clock()
	s.stoppedAt = &t
}

func (s *stopwatch) Elapsed() time.Duration {
	end := s.clock()
	if s.stoppedAt != nil {
		end = *s.stoppedAt
	}
	return end.Sub(s.startedAt)
}

// String renders MM:SS, the format shown in the call header. Minutes roll
// past 99 rather than wrapping to hours.
func (s *stopwatch) String() string {
	d := s.Elapsed()
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
