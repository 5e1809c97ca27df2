package payment

import "time"

// Attempt is one run of the external checkout flow for a lesson.
//
// Invariant: at most one attempt is in flight per session; a new attempt may
// only start after the previous one resolved or was skipped. The session
// controller enforces this; the tx_ref uniqueness per attempt keeps the
// gateway from confusing retries with replays.
type Attempt struct {
	TxRef    string `json:"tx_ref"`
	LessonID string `json:"lesson_id"`
	UserID   string `json:"user_id"`

	// Amount is the lesson's hourly rate in whole currency units.
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`

	Status        AttemptStatus `json:"status"`
	TransactionID string        `json:"transaction_id,omitempty"`
	ErrorMessage  string        `json:"error_message,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

type AttemptStatus string

const (
	AttemptPending   AttemptStatus = "pending"
	AttemptCompleted AttemptStatus = "completed"
	AttemptFailed    AttemptStatus = "failed"
)

// MessageKind discriminates the two inbound message shapes the gateway's
// popup delivers. Anything else is rejected at the webhook boundary.
type MessageKind string

const (
	MessageResponse MessageKind = "PAYMENT_RESPONSE"
	MessageClosed   MessageKind = "PAYMENT_CLOSED"
)

// StatusSuccessful is the gateway's wire value for a completed checkout.
const StatusSuccessful = "successful"

// Result is a typed inbound gateway message. MessageClosed carries no
// payload fields.
type Result struct {
	Kind          MessageKind `json:"kind"`
	Status        string      `json:"status,omitempty"`
	TxRef         string      `json:"tx_ref,omitempty"`
	TransactionID string      `json:"transaction_id,omitempty"`
	Amount        int64       `json:"amount,omitempty"`
	Message       string      `json:"message,omitempty"`
}

// Successful reports whether this result completes the checkout.
func (r Result) Successful() bool {
	return r.Kind == MessageResponse && r.Status == StatusSuccessful
}
