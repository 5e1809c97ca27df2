package lesson

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tutorme-platform/pkg/utils"
)

// PostgresStore implements Repository on database/sql (pgx stdlib driver).
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

func (s *PostgresStore) GetLesson(ctx context.Context, id string) (Lesson, error) {
	if id == "" {
		return Lesson{}, ErrNotFound
	}
	const q = `
		SELECT id, tutor_id, student_id, subject, room_id, status, payment_status,
		       payment_reference, payment_amount, has_ai_notes,
		       completed_at, payment_completed_at, created_at, last_updated
		FROM lessons
		WHERE id = $1`

	var l Lesson
	var ref sql.NullString
	var amount sql.NullInt64
	var completedAt, paymentCompletedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&l.ID, &l.TutorID, &l.StudentID, &l.Subject, &l.RoomID,
		&l.Status, &l.PaymentStatus,
		&ref, &amount, &l.HasAINotes,
		&completedAt, &paymentCompletedAt, &l.CreatedAt, &l.LastUpdated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Lesson{}, ErrNotFound
	}
	if err != nil {
		return Lesson{}, fmt.Errorf("lesson: get %s: %w", id, err)
	}
	l.PaymentReference = ref.String
	l.PaymentAmount = amount.Int64
	if completedAt.Valid {
		t := completedAt.Time
		l.CompletedAt = &t
	}
	if paymentCompletedAt.Valid {
		t := paymentCompletedAt.Time
		l.PaymentCompletedAt = &t
	}
	return l, nil
}

func (s *PostgresStore) GetTutorProfile(ctx context.Context, tutorID string) (TutorProfile, error) {
	if tutorID == "" {
		return TutorProfile{}, ErrNotFound
	}
	const q = `
		SELECT id, display_name, role, COALESCE(hourly_rate, 0)
		FROM users
		WHERE id = $1`

	var p TutorProfile
	err := s.db.QueryRowContext(ctx, q, tutorID).Scan(&p.UserID, &p.DisplayName, &p.Role, &p.HourlyRate)
	if errors.Is(err, sql.ErrNoRows) {
		return TutorProfile{}, ErrNotFound
	}
	if err != nil {
		return TutorProfile{}, fmt.Errorf("lesson: tutor profile %s: %w", tutorID, err)
	}
	return p, nil
}

func (s *PostgresStore) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	const q = `
		UPDATE lessons
		SET status = $2, completed_at = $3, last_updated = $4
		WHERE id = $1`
	res, err := s.db.ExecContext(ctx, q, id, StatusCompleted, at.UTC(), s.clock().UTC())
	if err != nil {
		return fmt.Errorf("lesson: mark completed %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdatePayment(ctx context.Context, id string, upd PaymentUpdate) error {
	const q = `
		UPDATE lessons
		SET payment_status = $2, payment_reference = $3, payment_amount = $4,
		    payment_completed_at = $5, last_updated = $6
		WHERE id = $1`
	var completedAt any
	if upd.CompletedAt != nil {
		completedAt = upd.CompletedAt.UTC()
	}
	res, err := s.db.ExecContext(ctx, q, id, upd.Status, upd.Reference, upd.Amount, completedAt, s.clock().UTC())
	if err != nil {
		return fmt.Errorf("lesson: update payment %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SaveNotes(ctx context.Context, id, createdBy string, notes []Note) error {
	if len(notes) == 0 {
		return nil
	}
	now := s.clock().UTC()

	// The notes batch and the has_ai_notes flag move together.
	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// Replace any previous batch for this lesson; notes are saved in bulk.
		if _, err := tx.ExecContext(ctx, `DELETE FROM lesson_notes WHERE lesson_id = $1`, id); err != nil {
			return fmt.Errorf("lesson: clear notes %s: %w", id, err)
		}
		const ins = `
			INSERT INTO lesson_notes (lesson_id, kind, text, ts, created_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`
		for _, n := range notes {
			if _, err := tx.ExecContext(ctx, ins, id, n.Kind, n.Text, n.Timestamp.UTC(), createdBy, now); err != nil {
				return fmt.Errorf("lesson: insert note %s: %w", id, err)
			}
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE lessons SET has_ai_notes = TRUE, last_updated = $2 WHERE id = $1`, id, now)
		if err != nil {
			return fmt.Errorf("lesson: flag notes %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}
