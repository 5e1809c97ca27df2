package lesson

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("lesson: not found")
)

// Repository is the persistence contract for lesson records.
//
// Reads happen once at session start; writes happen at the three defined
// checkpoints. Implementations must treat SaveNotes as a single unit:
// the notes batch and the has_ai_notes flag move together.
type Repository interface {
	GetLesson(ctx context.Context, id string) (Lesson, error)
	GetTutorProfile(ctx context.Context, tutorID string) (TutorProfile, error)

	MarkCompleted(ctx context.Context, id string, at time.Time) error
	UpdatePayment(ctx context.Context, id string, upd PaymentUpdate) error

	// SaveNotes persists the generated-notes batch for a lesson and flips the
	// has_ai_notes flag. createdBy records which participant saved them.
	SaveNotes(ctx context.Context, id, createdBy string, notes []Note) error
}
