package calltransport

import "context"

// Transport is the provider-agnostic conferencing capability used by the
// session controller.
//
// Rules:
// - No provider SDK calls outside calltransport adapters.
// - The adapter only translates provider callback shapes into the
//   Participant/InboundText types below; it holds no business logic.
type Transport interface {
	Name() string
	Join(ctx context.Context, roomID, displayName string) (Call, error)
}

// Call is a live conference membership. One session controller owns exactly
// one Call and releases it on every exit path.
type Call interface {
	// Subscribe registers the listener for the closed set of call events.
	// Each roster event delivers a full snapshot that wholly replaces any
	// previous participant state; snapshots are never diffed or merged.
	Subscribe(l Listener)

	LocalParticipantID() string
	Participants() []Participant

	SendText(ctx context.Context, text string) error

	// LocalAudioTrack returns the viewer's audio capture, if one exists.
	LocalAudioTrack() (AudioTrack, bool)

	Leave(ctx context.Context) error
}

// Listener is the closed set of typed events a Call emits. Nil funcs are
// skipped.
type Listener struct {
	OnRosterChanged func(snapshot []Participant)
	OnMuteChanged   func(muted bool)
	OnVideoChanged  func(videoOn bool)
	OnTextReceived  func(msg InboundText)
}

// Participant is one live attendee, rebuilt in full from the provider's
// roster on every join/leave event.
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	IsMuted     bool   `json:"is_muted"`
	IsVideoOn   bool   `json:"is_video_on"`
	IsLocal     bool   `json:"is_local"`
}

// InboundText is a text message received over the call's side channel.
// The sender's own messages arrive through this same path (remote echo);
// the transport never short-circuits them locally.
type InboundText struct {
	SenderID   string
	SenderName string
	Text       string
}

// AudioTrack is a local audio capture producing fixed-size segments at a
// one-per-second cadence. Stop ends capture; the segment channel is closed
// afterwards.
type AudioTrack interface {
	Segments() <-chan []byte
	Stop()
}
