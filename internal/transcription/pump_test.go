package transcription

import (
	"context"
	"encoding/base64"
	"testing"
	"time"
)

func TestPump_EncodesEachSegmentIndependently(t *testing.T) {
	ch := NewMemoryChannel()
	segs := make(chan []byte, 4)
	segs <- []byte("one")
	segs <- []byte("two")
	close(segs)

	done := make(chan struct{})
	go func() {
		Pump(context.Background(), ch, "lesson-1", segs)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("pump did not drain")
	}

	chunks := ch.Chunks["lesson-1"]
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0] != base64.StdEncoding.EncodeToString([]byte("one")) {
		t.Fatalf("unexpected encoding: %q", chunks[0])
	}
}

func TestPump_CancelDiscardsInFlight(t *testing.T) {
	ch := NewMemoryChannel()
	segs := make(chan []byte)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Pump(ctx, ch, "lesson-1", segs)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("pump did not stop on cancel")
	}
	if ch.ChunkCount("lesson-1") != 0 {
		t.Fatalf("expected no chunks after cancel")
	}
}
