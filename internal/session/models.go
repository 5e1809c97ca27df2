package session

import (
	"time"

	"tutorme-platform/internal/calltransport"
)

// Viewer is the authenticated participant this controller serves.
type Viewer struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
}

// NoteKind classifies meeting notes. Only ai_note and final_summary are
// persisted on leave; transcript and system notes stay session-local.
type NoteKind string

const (
	NoteTranscript   NoteKind = "transcript"
	NoteAI           NoteKind = "ai_note"
	NoteFinalSummary NoteKind = "final_summary"
	NoteSystem       NoteKind = "system"
)

func (k NoteKind) persisted() bool {
	return k == NoteAI || k == NoteFinalSummary
}

// MeetingNote is one line of generated or system content, in arrival order.
type MeetingNote struct {
	ID   string    `json:"id"`
	Kind NoteKind  `json:"kind"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// ChatMessage is one call text message. IsLocal marks the viewer's own
// messages, which are discovered through the transport echo rather than
// appended at send time.
type ChatMessage struct {
	ID      string    `json:"id"`
	Sender  string    `json:"sender"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
	IsLocal bool      `json:"is_local"`
}

// PaymentView is the snapshot projection of the current payment attempt.
type PaymentView struct {
	TxRef       string `json:"tx_ref"`
	Status      string `json:"status"`
	CheckoutURL string `json:"checkout_url,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Snapshot is the full observable session state, returned by every
// operation so clients never need a second read.
type Snapshot struct {
	LessonID string `json:"lesson_id"`
	Subject  string `json:"subject"`
	State    State  `json:"state"`

	Elapsed string `json:"elapsed"`

	Participants []calltransport.Participant `json:"participants"`
	IsMuted      bool                        `json:"is_muted"`
	IsVideoOn    bool                        `json:"is_video_on"`

	Messages []ChatMessage `json:"messages"`
	Notes    []MeetingNote `json:"notes"`

	TranscriptionOn bool `json:"transcription_on"`

	Payment *PaymentView `json:"payment,omitempty"`

	// RedirectTo is set once the session has decided where the client goes
	// next (checkout page, or the lessons list after close).
	RedirectTo string `json:"redirect_to,omitempty"`
}
