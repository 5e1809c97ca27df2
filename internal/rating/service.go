package rating

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidRating   = errors.New("rating: stars must be between 0 and 5")
	ErrInvalidArgument = errors.New("rating: invalid argument")
)

// Repository is the persistence contract for ratings. Append-only.
type Repository interface {
	Insert(ctx context.Context, r Rating) error
}

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// Submit validates and persists one rating. Range: 0 <= stars <= 5.
func (s *Service) Submit(ctx context.Context, studentID, tutorID, lessonID string, stars int) (Rating, error) {
	if s.repo == nil {
		return Rating{}, errors.New("rating: repository not configured")
	}
	if studentID == "" || tutorID == "" || lessonID == "" {
		return Rating{}, ErrInvalidArgument
	}
	if stars < 0 || stars > 5 {
		return Rating{}, ErrInvalidRating
	}

	r := Rating{
		ID:        uuid.NewString(),
		StudentID: studentID,
		TutorID:   tutorID,
		LessonID:  lessonID,
		Stars:     stars,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.repo.Insert(ctx, r); err != nil {
		return Rating{}, err
	}
	return r, nil
}
