package transcription

import (
	"context"
	"sync"
)

// MemoryChannel is an in-process Channel for tests. It records outbound
// calls and lets tests emit inbound events.
type MemoryChannel struct {
	mu sync.Mutex

	ConnectedState bool
	StartErr       error

	Started   []string
	Stopped   []string
	Summaries []string
	Chunks    map[string][]string
	Metadata  map[string]SessionMetadata

	subs  map[int]func(Event)
	subID int
}

func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{
		ConnectedState: true,
		Chunks:         map[string][]string{},
		Metadata:       map[string]SessionMetadata{},
		subs:           map[int]func(Event){},
	}
}

func (c *MemoryChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ConnectedState
}

func (c *MemoryChannel) StartSession(ctx context.Context, sessionID string, meta SessionMetadata) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.StartErr != nil {
		return c.StartErr
	}
	if !c.ConnectedState {
		return nil
	}
	c.Started = append(c.Started, sessionID)
	c.Metadata[sessionID] = meta
	return nil
}

func (c *MemoryChannel) PushAudioChunk(ctx context.Context, sessionID, audioB64 string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ConnectedState {
		return nil
	}
	c.Chunks[sessionID] = append(c.Chunks[sessionID], audioB64)
	return nil
}

func (c *MemoryChannel) StopSession(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ConnectedState {
		return nil
	}
	c.Stopped = append(c.Stopped, sessionID)
	return nil
}

func (c *MemoryChannel) RequestFinalSummary(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ConnectedState {
		return nil
	}
	c.Summaries = append(c.Summaries, sessionID)
	return nil
}

func (c *MemoryChannel) Subscribe(fn func(Event)) (cancel func()) {
	c.mu.Lock()
	c.subID++
	id := c.subID
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Emit delivers an inbound event to all subscribers.
func (c *MemoryChannel) Emit(ev Event) {
	c.mu.Lock()
	subs := make([]func(Event), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// SubscriberCount reports live subscriptions, for leak assertions.
func (c *MemoryChannel) SubscriberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func (c *MemoryChannel) ChunkCount(sessionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Chunks[sessionID])
}
