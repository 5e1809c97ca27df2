package calltransport

import (
	"context"
	"errors"
	"sync"
)

// MemoryTransport is an in-process transport for tests and local
// development. Tests drive roster changes and inbound text through the
// MemoryCall it hands out.
type MemoryTransport struct {
	mu    sync.Mutex
	calls map[string]*MemoryCall

	// JoinErr, when set, makes Join fail; used to test acquisition paths.
	JoinErr error
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{calls: map[string]*MemoryCall{}}
}

func (t *MemoryTransport) Name() string { return "memory" }

func (t *MemoryTransport) Join(ctx context.Context, roomID, displayName string) (Call, error) {
	if t.JoinErr != nil {
		return nil, t.JoinErr
	}
	if roomID == "" {
		return nil, errors.New("calltransport: room id required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	c := &MemoryCall{
		localID: "local-" + roomID,
		roster: []Participant{
			{ID: "local-" + roomID, DisplayName: displayName, IsVideoOn: true, IsLocal: true},
		},
	}
	t.calls[roomID] = c
	return c, nil
}

// Call returns the live call for a room, if Join created one.
func (t *MemoryTransport) Call(roomID string) (*MemoryCall, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.calls[roomID]
	return c, ok
}

type MemoryCall struct {
	mu       sync.Mutex
	localID  string
	roster   []Participant
	listener Listener
	track    AudioTrack
	sent     []string
	left     bool
}

func (c *MemoryCall) Subscribe(l Listener) {
	c.mu.Lock()
	c.listener = l
	c.mu.Unlock()
}

func (c *MemoryCall) LocalParticipantID() string { return c.localID }

func (c *MemoryCall) Participants() []Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Participant, len(c.roster))
	copy(out, c.roster)
	return out
}

// SendText mirrors the real provider: the sender's message is delivered back
// through the inbound event stream, not appended locally.
func (c *MemoryCall) SendText(ctx context.Context, text string) error {
	c.mu.Lock()
	if c.left {
		c.mu.Unlock()
		return errors.New("calltransport: call already left")
	}
	c.sent = append(c.sent, text)
	l := c.listener
	localID := c.localID
	var localName string
	for _, p := range c.roster {
		if p.IsLocal {
			localName = p.DisplayName
		}
	}
	c.mu.Unlock()

	if l.OnTextReceived != nil {
		l.OnTextReceived(InboundText{SenderID: localID, SenderName: localName, Text: text})
	}
	return nil
}

func (c *MemoryCall) LocalAudioTrack() (AudioTrack, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.track == nil {
		return nil, false
	}
	return c.track, true
}

func (c *MemoryCall) Leave(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.left = true
	return nil
}

// --- test drivers ---

func (c *MemoryCall) SetAudioTrack(t AudioTrack) {
	c.mu.Lock()
	c.track = t
	c.mu.Unlock()
}

// AddParticipant appends to the roster and emits a full snapshot.
func (c *MemoryCall) AddParticipant(p Participant) {
	c.mu.Lock()
	c.roster = append(c.roster, p)
	snapshot := make([]Participant, len(c.roster))
	copy(snapshot, c.roster)
	l := c.listener
	c.mu.Unlock()

	if l.OnRosterChanged != nil {
		l.OnRosterChanged(snapshot)
	}
}

// RemoveParticipant drops from the roster and emits a full snapshot.
func (c *MemoryCall) RemoveParticipant(id string) {
	c.mu.Lock()
	next := c.roster[:0]
	for _, p := range c.roster {
		if p.ID != id {
			next = append(next, p)
		}
	}
	c.roster = next
	snapshot := make([]Participant, len(c.roster))
	copy(snapshot, c.roster)
	l := c.listener
	c.mu.Unlock()

	if l.OnRosterChanged != nil {
		l.OnRosterChanged(snapshot)
	}
}

// DeliverText injects a remote participant's message.
func (c *MemoryCall) DeliverText(senderID, senderName, text string) {
	c.mu.Lock()
	l := c.listener
	c.mu.Unlock()
	if l.OnTextReceived != nil {
		l.OnTextReceived(InboundText{SenderID: senderID, SenderName: senderName, Text: text})
	}
}

// Sent returns everything pushed through SendText.
func (c *MemoryCall) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *MemoryCall) Left() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.left
}

// StaticAudioTrack is a canned AudioTrack for tests.
type StaticAudioTrack struct {
	ch       chan []byte
	stopOnce sync.Once
	stopped  bool
	mu       sync.Mutex
}

func NewStaticAudioTrack(buffer int) *StaticAudioTrack {
	return &StaticAudioTrack{ch: make(chan []byte, buffer)}
}

func (t *StaticAudioTrack) Segments() <-chan []byte { return t.ch }

func (t *StaticAudioTrack) Push(seg []byte) { t.ch <- seg }

func (t *StaticAudioTrack) Stop() {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		t.stopped = true
		t.mu.Unlock()
		close(t.ch)
	})
}

func (t *StaticAudioTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}
