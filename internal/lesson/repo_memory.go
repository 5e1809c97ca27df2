package lesson

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is a simple in-memory lesson repository for tests and early
// development. Saved notes are retained for assertions.
type MemoryRepo struct {
	mu sync.Mutex

	Lessons  map[string]Lesson
	Profiles map[string]TutorProfile

	SavedNotes map[string][]Note
	SavedBy    map[string]string

	// FailMarkCompleted and FailSaveNotes let tests exercise the
	// best-effort teardown paths.
	FailMarkCompleted error
	FailSaveNotes     error
	FailUpdatePayment error
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		Lessons:    map[string]Lesson{},
		Profiles:   map[string]TutorProfile{},
		SavedNotes: map[string][]Note{},
		SavedBy:    map[string]string{},
	}
}

func (r *MemoryRepo) GetLesson(ctx context.Context, id string) (Lesson, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.Lessons[id]
	if !ok {
		return Lesson{}, ErrNotFound
	}
	return l, nil
}

func (r *MemoryRepo) GetTutorProfile(ctx context.Context, tutorID string) (TutorProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.Profiles[tutorID]
	if !ok {
		return TutorProfile{}, ErrNotFound
	}
	return p, nil
}

func (r *MemoryRepo) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailMarkCompleted != nil {
		return r.FailMarkCompleted
	}
	l, ok := r.Lessons[id]
	if !ok {
		return ErrNotFound
	}
	t := at
	l.Status = StatusCompleted
	l.CompletedAt = &t
	l.LastUpdated = at
	r.Lessons[id] = l
	return nil
}

func (r *MemoryRepo) UpdatePayment(ctx context.Context, id string, upd PaymentUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailUpdatePayment != nil {
		return r.FailUpdatePayment
	}
	l, ok := r.Lessons[id]
	if !ok {
		return ErrNotFound
	}
	l.PaymentStatus = upd.Status
	l.PaymentReference = upd.Reference
	l.PaymentAmount = upd.Amount
	l.PaymentCompletedAt = upd.CompletedAt
	r.Lessons[id] = l
	return nil
}

func (r *MemoryRepo) SaveNotes(ctx context.Context, id, createdBy string, notes []Note) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailSaveNotes != nil {
		return r.FailSaveNotes
	}
	l, ok := r.Lessons[id]
	if !ok {
		return ErrNotFound
	}
	out := make([]Note, len(notes))
	copy(out, notes)
	r.SavedNotes[id] = out
	r.SavedBy[id] = createdBy
	l.HasAINotes = true
	r.Lessons[id] = l
	return nil
}
