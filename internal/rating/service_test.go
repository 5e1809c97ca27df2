package rating

import (
	"context"
	"testing"
	"time"
)

func newTestService(repo Repository) *Service {
	svc := NewService(repo)
	svc.clock = func() time.Time { return time.Unix(1700000000, 0).UTC() }
	return svc
}

func TestSubmit_ValidRange(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo)

	r, err := svc.Submit(context.Background(), "s1", "t1", "l1", 4)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if r.Stars != 4 || r.ID == "" {
		t.Fatalf("unexpected rating: %+v", r)
	}
	if len(repo.Ratings()) != 1 {
		t.Fatalf("expected one persisted rating")
	}
}

func TestSubmit_RejectsOutOfRange(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo)

	for _, stars := range []int{-1, 6} {
		if _, err := svc.Submit(context.Background(), "s1", "t1", "l1", stars); err != ErrInvalidRating {
			t.Fatalf("stars=%d: expected ErrInvalidRating, got %v", stars, err)
		}
	}
	if len(repo.Ratings()) != 0 {
		t.Fatalf("invalid ratings must not be persisted")
	}
}

func TestSubmit_RejectsMissingIDs(t *testing.T) {
	svc := newTestService(NewMemoryRepo())
	if _, err := svc.Submit(context.Background(), "", "t1", "l1", 3); err != ErrInvalidArgument {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}
