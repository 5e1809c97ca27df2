package audit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to platform users by default.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.LessonID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogSessionLifecycle records a session state change (join, leave, close).
func (s *Service) LogSessionLifecycle(ctx context.Context, lessonID, actorUserID, actorRole, message string) error {
	return s.Append(ctx, Event{
		LessonID:    lessonID,
		Type:        EventTypeSessionLifecycle,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		Message:     message,
	})
}

// LogPaymentResult records an inbound gateway result against its attempt.
func (s *Service) LogPaymentResult(ctx context.Context, lessonID, txRef, status, message string) error {
	return s.Append(ctx, Event{
		LessonID: lessonID,
		Type:     EventTypePaymentResult,
		TxRef:    txRef,
		Message:  status,
		Metadata: message,
	})
}

// LogRating records a submitted lesson rating.
func (s *Service) LogRating(ctx context.Context, lessonID, studentID string, stars int) error {
	return s.Append(ctx, Event{
		LessonID:    lessonID,
		Type:        EventTypeRating,
		ActorUserID: studentID,
		Message:     "rated " + strconv.Itoa(stars) + " stars",
	})
}
