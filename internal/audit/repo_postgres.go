package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRepo appends audit events. Insert-only; retention is a schema
// concern, not a code path.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
		INSERT INTO audit_events (id, lesson_id, type, actor_user_id, actor_role, tx_ref, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.ExecContext(ctx, q,
		e.ID, e.LessonID, string(e.Type), e.ActorUserID, e.ActorRole, e.TxRef, e.Message, e.Metadata, e.CreatedAt,
	); err != nil {
		return fmt.Errorf("audit: append event: %w", err)
	}
	return nil
}
