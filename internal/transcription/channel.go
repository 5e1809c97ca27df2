package transcription

import "context"

// Channel is a bidirectional connection to the speech-to-text and
// note-generation service. One connection is opened per process and reused
// across sessions.
//
// Connectivity is best-effort for this feature: implementations must
// tolerate being invoked while disconnected by treating calls as no-ops,
// never as fatal errors.
type Channel interface {
	Connected() bool

	StartSession(ctx context.Context, sessionID string, meta SessionMetadata) error
	PushAudioChunk(ctx context.Context, sessionID, audioB64 string) error
	StopSession(ctx context.Context, sessionID string) error
	RequestFinalSummary(ctx context.Context, sessionID string) error

	// Subscribe registers a callback for inbound events and returns a cancel
	// func that removes it. The connection outlives any one session, so every
	// subscriber must unsubscribe when its session ends. Callbacks run on the
	// channel's read goroutine and must not block.
	Subscribe(fn func(Event)) (cancel func())
}

// Event is one inbound unit of generated content. SessionID identifies the
// owning transcription session; subscribers must drop events for sessions
// that are not theirs. A blank SessionID means the service omitted it.
type Event struct {
	SessionID string    `json:"session_id,omitempty"`
	Kind      EventKind `json:"kind"`
	Text      string    `json:"text"`
}

type EventKind string

const (
	EventTranscriptChunk EventKind = "transcript_chunk"
	EventAINote          EventKind = "ai_note"
	EventFinalSummary    EventKind = "final_summary"
)

// SessionMetadata is announced when a transcription session starts.
type SessionMetadata struct {
	Subject      string   `json:"subject"`
	Participants []string `json:"participants"`
}
