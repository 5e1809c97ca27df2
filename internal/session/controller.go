package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tutorme-platform/internal/audit"
	"tutorme-platform/internal/calltransport"
	"tutorme-platform/internal/lesson"
	"tutorme-platform/internal/payment"
	"tutorme-platform/internal/rating"
	"tutorme-platform/internal/transcription"
)

// Config wires a controller's collaborators. Lessons, Transport, Channel,
// Gateway and Results are required; the rest default sensibly.
type Config struct {
	Lessons lesson.Repository
	Ratings *rating.Service

	Transport calltransport.Transport
	Channel   transcription.Channel
	Gateway   payment.Gateway
	Results   *payment.ResultMux

	Audit *audit.Service
	Log   *slog.Logger

	Clock func() time.Time

	// Navigate is invoked with the client's next destination. HTTP callers
	// read RedirectTo from the snapshot instead; Navigate exists for
	// embedders that drive a UI directly.
	Navigate func(url string)

	// RatingDelay separates a successful rating submit from the automatic
	// checkout initiation. Zero initiates inline.
	RatingDelay time.Duration

	// NavigateDelay holds a successful payment on screen before the session
	// closes. Zero closes inline.
	NavigateDelay time.Duration

	LessonsListURL string
	Currency       string
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Log == nil {
		out.Log = slog.Default()
	}
	if out.Clock == nil {
		out.Clock = time.Now
	}
	if out.LessonsListURL == "" {
		out.LessonsListURL = "/mylessons"
	}
	if out.Currency == "" {
		out.Currency = "MWK"
	}
	return out
}

// Controller runs one viewer's live lesson session from join to close.
//
// All mutable state sits behind mu. Event callbacks from the call
// transport, the transcription channel and the payment mux converge here,
// so every handler takes the lock before touching anything.
type Controller struct {
	cfg    Config
	viewer Viewer

	mu    sync.Mutex
	state State

	les     lesson.Lesson
	call    calltransport.Call
	watch   *stopwatch
	localID string

	roster  []calltransport.Participant
	muted   bool
	videoOn bool

	messages []ChatMessage
	notes    []MeetingNote

	transcribing bool
	// transcribedOnce stays set after the first successful start so late
	// generated content (the final summary lands after stop) is still taken.
	transcribedOnce bool
	audioTrack      calltransport.AudioTrack
	pumpCancel      context.CancelFunc
	unsubscribe     func()

	attempt     *payment.Attempt
	checkoutURL string
	ratingDone  bool

	// closeRequested defers navigation when the viewer asks to close while
	// a payment attempt is still unresolved.
	closeRequested bool

	redirectTo string

	// onClosed notifies the owning manager exactly once.
	onClosed   func()
	closedOnce sync.Once
}

// Start validates the viewer against the lesson, joins the call and returns
// a live controller. On any validation failure no resources are held.
func Start(ctx context.Context, cfg Config, lessonID string, viewer Viewer) (*Controller, error) {
	c := &Controller{cfg: cfg.withDefaults(), viewer: viewer, state: StateInitializing}

	les, err := c.cfg.Lessons.GetLesson(ctx, lessonID)
	if err != nil {
		if errors.Is(err, lesson.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session: load lesson: %w", err)
	}
	if !les.IsParticipant(viewer.ID) {
		c.state = StateRejected
		return nil, ErrUnauthorized
	}

	profile, err := c.cfg.Lessons.GetTutorProfile(ctx, les.TutorID)
	if err != nil {
		if errors.Is(err, lesson.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session: load tutor profile: %w", err)
	}
	if profile.Role != "tutor" || profile.HourlyRate <= 0 {
		c.state = StateRejected
		return nil, ErrInvalidTutorProfile
	}
	les.HourlyRate = profile.HourlyRate
	c.les = les

	call, err := c.cfg.Transport.Join(ctx, les.RoomID, viewer.DisplayName)
	if err != nil {
		return nil, fmt.Errorf("session: join call: %w", err)
	}
	c.call = call
	c.localID = call.LocalParticipantID()
	c.roster = call.Participants()

	call.Subscribe(calltransport.Listener{
		OnRosterChanged: c.onRoster,
		OnMuteChanged:   c.onMute,
		OnVideoChanged:  c.onVideo,
		OnTextReceived:  c.onText,
	})
	if c.cfg.Channel != nil {
		c.unsubscribe = c.cfg.Channel.Subscribe(c.onTranscriptionEvent)
	}

	c.watch = newStopwatch(c.cfg.Clock)
	c.state = StateActive

	c.auditLifecycle(ctx, "session started")
	return c, nil
}

// OnClosed registers a callback run once when the session reaches
// StateClosed. Used by the manager to drop its registry entry.
func (c *Controller) OnClosed(fn func()) {
	c.mu.Lock()
	c.onClosed = fn
	c.mu.Unlock()
}

// SendMessage sends a chat line into the call. The message appears in the
// local log only when the transport echoes it back, so ordering matches
// what every other participant sees.
func (c *Controller) SendMessage(ctx context.Context, text string) (Snapshot, error) {
	if strings.TrimSpace(text) == "" {
		return c.Snapshot(), nil
	}

	c.mu.Lock()
	if !c.state.allows(opSendMessage) {
		defer c.mu.Unlock()
		return c.snapshotLocked(), ErrBadState
	}
	call := c.call
	c.mu.Unlock()

	if err := call.SendText(ctx, text); err != nil {
		return c.Snapshot(), fmt.Errorf("session: send message: %w", err)
	}
	return c.Snapshot(), nil
}

// ToggleTranscription flips recording on or off.
//
// Turning it on requires a local audio track. A channel that refuses to
// start is not fatal: the failure lands in the notes as a system line and
// recording stays off.
func (c *Controller) ToggleTranscription(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.allows(opToggleTranscription) {
		return c.snapshotLocked(), ErrBadState
	}
	if c.transcribing {
		c.stopTranscriptionLocked(ctx)
		return c.snapshotLocked(), nil
	}

	track, ok := c.call.LocalAudioTrack()
	if !ok {
		return c.snapshotLocked(), ErrNoAudioTrack
	}

	meta := transcription.SessionMetadata{Subject: c.les.Subject}
	for _, p := range c.roster {
		meta.Participants = append(meta.Participants, p.DisplayName)
	}
	if err := c.cfg.Channel.StartSession(ctx, c.les.ID, meta); err != nil {
		c.appendNoteLocked(NoteSystem, "Could not start transcription: "+err.Error())
		return c.snapshotLocked(), nil
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	c.transcribing = true
	c.transcribedOnce = true
	c.audioTrack = track
	c.pumpCancel = cancel
	go transcription.Pump(pumpCtx, c.cfg.Channel, c.les.ID, track.Segments())

	c.appendNoteLocked(NoteSystem, "Started recording and transcription.")
	return c.snapshotLocked(), nil
}

func (c *Controller) stopTranscriptionLocked(ctx context.Context) {
	if !c.transcribing {
		return
	}
	c.transcribing = false
	if c.pumpCancel != nil {
		c.pumpCancel()
		c.pumpCancel = nil
	}
	if c.audioTrack != nil {
		c.audioTrack.Stop()
		c.audioTrack = nil
	}
	if err := c.cfg.Channel.StopSession(ctx, c.les.ID); err != nil {
		c.cfg.Log.Warn("stop transcription session", "lesson_id", c.les.ID, "error", err)
	}
	if err := c.cfg.Channel.RequestFinalSummary(ctx, c.les.ID); err != nil {
		c.cfg.Log.Warn("request final summary", "lesson_id", c.les.ID, "error", err)
	}
	c.appendNoteLocked(NoteSystem, "Stopped recording and transcription.")
}

// Leave ends the viewer's participation: transcription stops, generated
// notes and completion are persisted best-effort, and the call is released.
// A student then enters the rating prompt; a tutor's session closes.
func (c *Controller) Leave(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.allows(opLeave) {
		return c.snapshotLocked(), ErrBadState
	}

	c.stopTranscriptionLocked(ctx)
	c.saveNotesLocked(ctx)

	if err := c.cfg.Lessons.MarkCompleted(ctx, c.les.ID, c.cfg.Clock().UTC()); err != nil {
		c.cfg.Log.Warn("mark lesson completed", "lesson_id", c.les.ID, "error", err)
	} else {
		c.les.Status = lesson.StatusCompleted
	}

	c.watch.Stop()
	if err := c.call.Leave(ctx); err != nil {
		c.cfg.Log.Warn("leave call", "lesson_id", c.les.ID, "error", err)
	}

	c.auditLifecycle(ctx, "session left")

	if c.viewer.ID == c.les.StudentID {
		c.state = StateRatingPrompt
		return c.snapshotLocked(), nil
	}
	c.closeLocked()
	return c.snapshotLocked(), nil
}

// saveNotesLocked persists the ai_note and final_summary lines gathered
// during the session. Nothing to save and storage failures both leave the
// session flow untouched.
func (c *Controller) saveNotesLocked(ctx context.Context) {
	var batch []lesson.Note
	for _, n := range c.notes {
		if !n.Kind.persisted() {
			continue
		}
		batch = append(batch, lesson.Note{Kind: string(n.Kind), Text: n.Text, Timestamp: n.At})
	}
	if len(batch) == 0 {
		return
	}
	if err := c.cfg.Lessons.SaveNotes(ctx, c.les.ID, c.viewer.ID, batch); err != nil {
		c.cfg.Log.Warn("save meeting notes", "lesson_id", c.les.ID, "error", err)
		return
	}
	c.les.HasAINotes = true
}

// SubmitRating records the student's 0 to 5 star rating, then moves on to
// checkout. Submitting again after a success is a no-op.
func (c *Controller) SubmitRating(ctx context.Context, stars int) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.allows(opSubmitRating) {
		return c.snapshotLocked(), ErrBadState
	}
	if c.ratingDone {
		return c.snapshotLocked(), nil
	}

	if _, err := c.cfg.Ratings.Submit(ctx, c.viewer.ID, c.les.TutorID, c.les.ID, stars); err != nil {
		return c.snapshotLocked(), err
	}
	c.ratingDone = true
	if c.cfg.Audit != nil {
		if err := c.cfg.Audit.LogRating(ctx, c.les.ID, c.viewer.ID, stars); err != nil {
			c.cfg.Log.Warn("audit rating", "lesson_id", c.les.ID, "error", err)
		}
	}

	c.schedulePaymentLocked(ctx)
	return c.snapshotLocked(), nil
}

// schedulePaymentLocked moves on from the rating prompt to checkout,
// optionally after the configured pacing delay. Failures stay in the
// rating prompt so InitiatePayment can be retried explicitly.
func (c *Controller) schedulePaymentLocked(ctx context.Context) {
	if c.cfg.RatingDelay <= 0 {
		if err := c.beginPaymentLocked(ctx); err != nil {
			c.cfg.Log.Warn("auto-initiate payment", "lesson_id", c.les.ID, "error", err)
		}
		return
	}
	time.AfterFunc(c.cfg.RatingDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.state != StateRatingPrompt {
			return
		}
		if err := c.beginPaymentLocked(context.Background()); err != nil {
			c.cfg.Log.Warn("auto-initiate payment", "lesson_id", c.les.ID, "error", err)
		}
	})
}

// SkipRating declines the rating prompt. Payment is not optional: skipping
// only skips the stars and goes straight to checkout.
func (c *Controller) SkipRating(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.allows(opSkipRating) {
		return c.snapshotLocked(), ErrBadState
	}
	c.ratingDone = true
	c.auditLifecycle(ctx, "rating skipped")
	c.schedulePaymentLocked(ctx)
	return c.snapshotLocked(), nil
}

// InitiatePayment starts (or retries) a checkout attempt and returns a
// snapshot whose payment view carries the redirect URL.
func (c *Controller) InitiatePayment(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.allows(opInitiatePayment) {
		return c.snapshotLocked(), ErrBadState
	}
	if err := c.beginPaymentLocked(ctx); err != nil {
		return c.snapshotLocked(), err
	}
	return c.snapshotLocked(), nil
}

func (c *Controller) beginPaymentLocked(ctx context.Context) error {
	if c.attempt != nil && c.attempt.Status == payment.AttemptPending {
		return ErrPaymentInFlight
	}
	if c.cfg.Gateway == nil || !c.cfg.Gateway.Ready() {
		return ErrPaymentSystemNotReady
	}
	if c.les.ID == "" || c.viewer.ID == "" {
		return ErrMissingContext
	}

	txRef := "tutorme_" + uuid.NewString()
	attempt := &payment.Attempt{
		TxRef:     txRef,
		LessonID:  c.les.ID,
		UserID:    c.viewer.ID,
		Amount:    c.les.HourlyRate,
		Currency:  c.cfg.Currency,
		Status:    payment.AttemptPending,
		CreatedAt: c.cfg.Clock().UTC(),
	}

	first, last := splitName(c.viewer.DisplayName)
	red, err := c.cfg.Gateway.Initiate(ctx, payment.CheckoutRequest{
		TxRef:       txRef,
		Amount:      attempt.Amount,
		Currency:    attempt.Currency,
		Email:       c.viewer.Email,
		FirstName:   first,
		LastName:    last,
		Title:       "Lesson Payment",
		Description: "Payment for " + c.les.Subject + " lesson",
		LessonID:    c.les.ID,
		UserID:      c.viewer.ID,
	})
	if err != nil {
		return fmt.Errorf("session: initiate checkout: %w", err)
	}

	c.attempt = attempt
	c.checkoutURL = red.URL
	c.state = StatePaymentInFlight
	c.cfg.Results.Register(txRef, c.handlePaymentResult)
	return nil
}

// handlePaymentResult consumes one gateway result for the registered
// attempt. Repeat deliveries and results for an already resolved attempt
// are ignored.
func (c *Controller) handlePaymentResult(res payment.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.attempt == nil || c.attempt.Status != payment.AttemptPending {
		return
	}
	if res.Kind == payment.MessageResponse && res.TxRef != c.attempt.TxRef {
		return
	}
	if res.Kind == payment.MessageClosed && res.TxRef != "" && res.TxRef != c.attempt.TxRef {
		return
	}

	ctx := context.Background()
	now := c.cfg.Clock().UTC()
	c.attempt.ResolvedAt = &now

	switch {
	case res.Kind == payment.MessageClosed:
		c.attempt.Status = payment.AttemptFailed
		c.attempt.ErrorMessage = "Payment was cancelled or closed."

	case res.Successful():
		upd := lesson.PaymentUpdate{
			Status:      lesson.PaymentCompleted,
			Reference:   res.TransactionID,
			Amount:      c.attempt.Amount,
			CompletedAt: &now,
		}
		if err := c.cfg.Lessons.UpdatePayment(ctx, c.les.ID, upd); err != nil {
			c.cfg.Log.Error("record completed payment", "lesson_id", c.les.ID, "tx_ref", c.attempt.TxRef, "error", err)
			c.attempt.Status = payment.AttemptFailed
			c.attempt.ErrorMessage = "Payment verification failed. Please contact support."
			break
		}
		c.attempt.Status = payment.AttemptCompleted
		c.attempt.TransactionID = res.TransactionID
		c.les.PaymentStatus = lesson.PaymentCompleted
		c.les.PaymentReference = res.TransactionID
		c.les.PaymentAmount = c.attempt.Amount
		c.les.PaymentCompletedAt = &now

	default:
		c.attempt.Status = payment.AttemptFailed
		if res.Message != "" {
			c.attempt.ErrorMessage = res.Message
		} else {
			c.attempt.ErrorMessage = "Payment failed. Please try again."
		}
	}

	c.cfg.Results.Unregister(c.attempt.TxRef)
	if c.cfg.Audit != nil {
		if err := c.cfg.Audit.LogPaymentResult(ctx, c.les.ID, c.attempt.TxRef, string(c.attempt.Status), c.attempt.ErrorMessage); err != nil {
			c.cfg.Log.Warn("audit payment result", "lesson_id", c.les.ID, "error", err)
		}
	}

	c.state = StatePaymentResolved

	if c.attempt.Status == payment.AttemptCompleted {
		if c.closeRequested || c.cfg.NavigateDelay <= 0 {
			c.closeLocked()
			return
		}
		time.AfterFunc(c.cfg.NavigateDelay, func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.state == StatePaymentResolved {
				c.closeLocked()
			}
		})
		return
	}
	if c.closeRequested {
		c.closeLocked()
	}
}

// Close disposes the session after the post-call flow. Closing while a
// payment attempt is unresolved defers the actual close until the result
// arrives, so a late webhook still lands on lesson state.
func (c *Controller) Close(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return c.snapshotLocked(), nil
	}
	if !c.state.allows(opClose) {
		return c.snapshotLocked(), ErrBadState
	}
	if c.state == StatePaymentInFlight {
		c.closeRequested = true
		return c.snapshotLocked(), nil
	}
	if c.state == StateActive {
		// dispose path: release the call without the leave checkpoints
		c.stopTranscriptionLocked(ctx)
		c.watch.Stop()
		if err := c.call.Leave(ctx); err != nil {
			c.cfg.Log.Warn("leave call", "lesson_id", c.les.ID, "error", err)
		}
	}
	c.auditLifecycle(ctx, "session closed")
	c.closeLocked()
	return c.snapshotLocked(), nil
}

func (c *Controller) closeLocked() {
	if c.state == StateClosed {
		return
	}
	c.state = StateClosed
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	c.redirectTo = c.cfg.LessonsListURL
	if c.cfg.Navigate != nil {
		go c.cfg.Navigate(c.cfg.LessonsListURL)
	}
	if c.onClosed != nil {
		fn := c.onClosed
		c.closedOnce.Do(func() { go fn() })
	}
}

// Snapshot returns the session's observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		LessonID:        c.les.ID,
		Subject:         c.les.Subject,
		State:           c.state,
		IsMuted:         c.muted,
		IsVideoOn:       c.videoOn,
		TranscriptionOn: c.transcribing,
		RedirectTo:      c.redirectTo,
	}
	if c.watch != nil {
		snap.Elapsed = c.watch.String()
	}
	snap.Participants = append([]calltransport.Participant(nil), c.roster...)
	snap.Messages = append([]ChatMessage(nil), c.messages...)
	snap.Notes = append([]MeetingNote(nil), c.notes...)

	if c.attempt != nil {
		snap.Payment = &PaymentView{
			TxRef:  c.attempt.TxRef,
			Status: string(c.attempt.Status),
			Error:  c.attempt.ErrorMessage,
		}
		if c.attempt.Status == payment.AttemptPending {
			snap.Payment.CheckoutURL = c.checkoutURL
			snap.RedirectTo = c.checkoutURL
		}
	}
	return snap
}

func (c *Controller) onRoster(snapshot []calltransport.Participant) {
	c.mu.Lock()
	c.roster = append([]calltransport.Participant(nil), snapshot...)
	c.mu.Unlock()
}

func (c *Controller) onMute(muted bool) {
	c.mu.Lock()
	c.muted = muted
	c.mu.Unlock()
}

func (c *Controller) onVideo(videoOn bool) {
	c.mu.Lock()
	c.videoOn = videoOn
	c.mu.Unlock()
}

func (c *Controller) onText(msg calltransport.InboundText) {
	c.mu.Lock()
	c.messages = append(c.messages, ChatMessage{
		ID:      uuid.NewString(),
		Sender:  msg.SenderName,
		Text:    msg.Text,
		At:      c.cfg.Clock().UTC(),
		IsLocal: msg.SenderID == c.localID,
	})
	c.mu.Unlock()
}

// onTranscriptionEvent files inbound generated content. The channel is
// shared by every live session on this process, so an event is taken only
// when it carries this session's id, and never before this session has
// started transcribing; anything else belongs to another lesson.
func (c *Controller) onTranscriptionEvent(ev transcription.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed || c.state == StateRejected {
		return
	}
	if ev.SessionID != "" && ev.SessionID != c.les.ID {
		return
	}
	if !c.transcribedOnce {
		return
	}
	switch ev.Kind {
	case transcription.EventTranscriptChunk:
		if c.transcribing {
			c.appendNoteLocked(NoteTranscript, ev.Text)
		}
	case transcription.EventAINote:
		c.appendNoteLocked(NoteAI, ev.Text)
	case transcription.EventFinalSummary:
		c.appendNoteLocked(NoteFinalSummary, ev.Text)
	}
}

func (c *Controller) appendNoteLocked(kind NoteKind, text string) {
	c.notes = append(c.notes, MeetingNote{
		ID:   uuid.NewString(),
		Kind: kind,
		Text: text,
		At:   c.cfg.Clock().UTC(),
	})
}

func (c *Controller) auditLifecycle(ctx context.Context, msg string) {
	if c.cfg.Audit == nil {
		return
	}
	if err := c.cfg.Audit.LogSessionLifecycle(ctx, c.les.ID, c.viewer.ID, c.viewer.Role, msg); err != nil {
		c.cfg.Log.Warn("audit lifecycle", "lesson_id", c.les.ID, "error", err)
	}
}

func splitName(display string) (first, last string) {
	first = display
	for i := len(display) - 1; i >= 0; i-- {
		if display[i] == ' ' {
			return display[:i], display[i+1:]
		}
	}
	return first, ""
}
