package rating

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory append-only rating repository for tests.
type MemoryRepo struct {
	mu      sync.Mutex
	ratings []Rating
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Insert(ctx context.Context, rt Rating) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ratings = append(r.ratings, rt)
	return nil
}

func (r *MemoryRepo) Ratings() []Rating {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Rating, len(r.ratings))
	copy(out, r.ratings)
	return out
}
