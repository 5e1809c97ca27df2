package rating

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRepo implements Repository on database/sql (pgx stdlib driver).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Insert(ctx context.Context, rt Rating) error {
	const q = `
		INSERT INTO ratings (id, student_id, tutor_id, lesson_id, stars, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(ctx, q, rt.ID, rt.StudentID, rt.TutorID, rt.LessonID, rt.Stars, rt.CreatedAt); err != nil {
		return fmt.Errorf("rating: insert: %w", err)
	}
	return nil
}
