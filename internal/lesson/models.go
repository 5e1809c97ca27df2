package lesson

import "time"

// Lesson represents one scheduled tutoring session.
//
// Ownership invariant: exactly one of TutorID/StudentID may be the viewer of
// a live session; anyone else is rejected before call resources are acquired.
//
// Lifecycle: created by the scheduling flow (out of scope here), loaded
// read-only at session start, and mutated only at three checkpoints
// (payment completion, completion marking, notes-saved flag). Never deleted
// by this service.
type Lesson struct {
	ID        string `json:"id" db:"id"`
	TutorID   string `json:"tutor_id" db:"tutor_id"`
	StudentID string `json:"student_id" db:"student_id"`

	Subject string `json:"subject" db:"subject"`

	// RoomID is the call-transport room for the live session.
	RoomID string `json:"room_id" db:"room_id"`

	Status        Status        `json:"status" db:"status"`
	PaymentStatus PaymentStatus `json:"payment_status" db:"payment_status"`

	// HourlyRate is resolved from the tutor's profile at session start and is
	// quoted in whole currency units, the way the payment gateway expects it.
	// It is not stored on the lesson row.
	HourlyRate int64 `json:"hourly_rate,omitempty" db:"-"`

	PaymentReference string `json:"payment_reference,omitempty" db:"payment_reference"`
	PaymentAmount    int64  `json:"payment_amount,omitempty" db:"payment_amount"`

	HasAINotes bool `json:"has_ai_notes" db:"has_ai_notes"`

	CompletedAt        *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	PaymentCompletedAt *time.Time `json:"payment_completed_at,omitempty" db:"payment_completed_at"`

	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	LastUpdated time.Time `json:"last_updated" db:"last_updated"`
}

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// IsParticipant reports whether userID is the tutor or the student of this lesson.
func (l Lesson) IsParticipant(userID string) bool {
	return userID != "" && (userID == l.TutorID || userID == l.StudentID)
}

// TutorProfile is the subset of a user record the session start path needs:
// role confirmation and the hourly rate.
type TutorProfile struct {
	UserID      string `json:"user_id" db:"user_id"`
	DisplayName string `json:"display_name" db:"display_name"`
	Role        string `json:"role" db:"role"`
	HourlyRate  int64  `json:"hourly_rate" db:"hourly_rate"`
}

// Note is one persisted unit of generated lesson content. Only ai_note and
// final_summary kinds are persisted; transcripts and system notes stay
// session-local.
type Note struct {
	Kind      string    `json:"kind" db:"kind"`
	Text      string    `json:"text" db:"text"`
	Timestamp time.Time `json:"timestamp" db:"ts"`
}

// PaymentUpdate carries the payment checkpoint written when a gateway result
// resolves an attempt.
type PaymentUpdate struct {
	Status      PaymentStatus
	Reference   string
	Amount      int64
	CompletedAt *time.Time
}
