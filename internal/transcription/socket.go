package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 5 * time.Second
	writeBuffer  = 64
)

// SocketChannel implements Channel over a websocket connection.
//
// Writes are serialized through a single writer goroutine; inbound frames
// are decoded on a read goroutine and fanned out to subscribers. A read or
// write failure flips the channel to disconnected, after which every
// operation degrades to a no-op until Connect is called again.
type SocketChannel struct {
	url string
	log *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	writeCh   chan []byte
	cancel    context.CancelFunc
	connected bool

	subMu sync.Mutex
	subs  map[int]func(Event)
	subID int
}

func NewSocketChannel(url string, log *slog.Logger) *SocketChannel {
	if log == nil {
		log = slog.Default()
	}
	return &SocketChannel{url: url, log: log, subs: map[int]func(Event){}}
}

// Connect dials the transcription service. Safe to call again after a drop.
func (c *SocketChannel) Connect(ctx context.Context) error {
	if c.url == "" {
		return errors.New("transcription: socket url not configured")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.conn = conn
	c.writeCh = make(chan []byte, writeBuffer)
	c.cancel = cancel
	c.connected = true

	go c.writeLoop(loopCtx, conn, c.writeCh)
	go c.readLoop(conn)

	c.log.Info("transcription socket connected", "url", c.url)
	return nil
}

func (c *SocketChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropLocked()
}

func (c *SocketChannel) dropLocked() error {
	if !c.connected {
		return nil
	}
	c.connected = false
	if c.cancel != nil {
		c.cancel()
	}
	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	return err
}

func (c *SocketChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *SocketChannel) Subscribe(fn func(Event)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	c.subMu.Lock()
	c.subID++
	id := c.subID
	c.subs[id] = fn
	c.subMu.Unlock()
	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

// outboundFrame mirrors the service's event envelope.
type outboundFrame struct {
	Event     string           `json:"event"`
	SessionID string           `json:"session_id"`
	Metadata  *SessionMetadata `json:"metadata,omitempty"`
	Audio     string           `json:"audio,omitempty"`
	Final     bool             `json:"request_final,omitempty"`
}

func (c *SocketChannel) StartSession(ctx context.Context, sessionID string, meta SessionMetadata) error {
	return c.send(outboundFrame{Event: "start_session", SessionID: sessionID, Metadata: &meta})
}

func (c *SocketChannel) PushAudioChunk(ctx context.Context, sessionID, audioB64 string) error {
	return c.send(outboundFrame{Event: "audio_chunk", SessionID: sessionID, Audio: audioB64})
}

func (c *SocketChannel) StopSession(ctx context.Context, sessionID string) error {
	return c.send(outboundFrame{Event: "stop_session", SessionID: sessionID})
}

func (c *SocketChannel) RequestFinalSummary(ctx context.Context, sessionID string) error {
	return c.send(outboundFrame{Event: "generate_summary", SessionID: sessionID, Final: true})
}

// send is a no-op while disconnected; a full write buffer drops the frame
// rather than blocking the caller.
func (c *SocketChannel) send(f outboundFrame) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	ch := c.writeCh
	c.mu.Unlock()

	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	select {
	case ch <- data:
	default:
		c.log.Warn("transcription write buffer full, dropping frame", "event", f.Event)
	}
	return nil
}

func (c *SocketChannel) writeLoop(ctx context.Context, conn *websocket.Conn, ch chan []byte) {
	for {
		select {
		case data, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// inboundFrame covers both shapes the service emits: transcript text and
// generated notes. session_id echoes the value from the outbound frames so
// events can be demuxed to the owning session.
type inboundFrame struct {
	Event     string `json:"event"`
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	Note      string `json:"note"`
}

func (c *SocketChannel) readLoop(conn *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		_ = c.dropLocked()
		c.mu.Unlock()
		c.log.Info("transcription socket disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var f inboundFrame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Warn("transcription frame decode failed", "err", err)
			continue
		}
		ev, ok := decodeInbound(f)
		if !ok {
			continue
		}
		c.dispatch(ev)
	}
}

func decodeInbound(f inboundFrame) (Event, bool) {
	switch f.Event {
	case string(EventTranscriptChunk):
		return Event{SessionID: f.SessionID, Kind: EventTranscriptChunk, Text: f.Text}, f.Text != ""
	case string(EventAINote):
		return Event{SessionID: f.SessionID, Kind: EventAINote, Text: f.Note}, f.Note != ""
	case string(EventFinalSummary):
		text := f.Note
		if text == "" {
			text = f.Text
		}
		return Event{SessionID: f.SessionID, Kind: EventFinalSummary, Text: text}, text != ""
	default:
		return Event{}, false
	}
}

func (c *SocketChannel) dispatch(ev Event) {
	c.subMu.Lock()
	subs := make([]func(Event), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.subMu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}
