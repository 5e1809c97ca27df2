package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - lesson_id is required; every audited action happens in a lesson context.
// - Actor capture is best-effort; do not block critical flows on audit failures.
//
// Storage recommendation (Postgres):
// - Table audit_events with an INSERT-only policy.
// - Optional: trigger to prevent UPDATE/DELETE.
// - Optional: partition by time for retention.

type Event struct {
	ID       string `json:"id" db:"id"`
	LessonID string `json:"lesson_id" db:"lesson_id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated user causing the event (if applicable).
	// Payment results arrive from the gateway, not a user, and leave it empty.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	// TxRef identifies the payment attempt for payment events.
	TxRef string `json:"tx_ref,omitempty" db:"tx_ref"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeSessionLifecycle EventType = "session_lifecycle"
	EventTypePaymentResult    EventType = "payment_result"
	EventTypeRating           EventType = "rating_submitted"
)
