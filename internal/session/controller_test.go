package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tutorme-platform/internal/calltransport"
	"tutorme-platform/internal/lesson"
	"tutorme-platform/internal/payment"
	"tutorme-platform/internal/rating"
	"tutorme-platform/internal/transcription"
)

type fixture struct {
	repo      *lesson.MemoryRepo
	ratings   *rating.MemoryRepo
	transport *calltransport.MemoryTransport
	channel   *transcription.MemoryChannel
	gateway   *payment.MemoryGateway
	mux       *payment.ResultMux
	cfg       Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := lesson.NewMemoryRepo()
	repo.Lessons["lsn-1"] = lesson.Lesson{
		ID:            "lsn-1",
		TutorID:       "tut-1",
		StudentID:     "stu-1",
		Subject:       "Mathematics",
		RoomID:        "room-1",
		Status:        lesson.StatusScheduled,
		PaymentStatus: lesson.PaymentPending,
	}
	repo.Profiles["tut-1"] = lesson.TutorProfile{
		UserID: "tut-1", DisplayName: "Thoko Phiri", Role: "tutor", HourlyRate: 5000,
	}

	ratingRepo := rating.NewMemoryRepo()
	f := &fixture{
		repo:      repo,
		ratings:   ratingRepo,
		transport: calltransport.NewMemoryTransport(),
		channel:   transcription.NewMemoryChannel(),
		gateway:   payment.NewMemoryGateway(),
		mux:       payment.NewResultMux(),
	}
	f.cfg = Config{
		Lessons:   repo,
		Ratings:   rating.NewService(ratingRepo),
		Transport: f.transport,
		Channel:   f.channel,
		Gateway:   f.gateway,
		Results:   f.mux,
		Clock:     func() time.Time { return time.Unix(1700000000, 0) },
	}
	return f
}

func student() Viewer {
	return Viewer{ID: "stu-1", DisplayName: "Chikondi Banda", Email: "chikondi@example.com", Role: "student"}
}

func tutor() Viewer {
	return Viewer{ID: "tut-1", DisplayName: "Thoko Phiri", Email: "thoko@example.com", Role: "tutor"}
}

func startSession(t *testing.T, f *fixture, v Viewer) *Controller {
	t.Helper()
	c, err := Start(context.Background(), f.cfg, "lsn-1", v)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestStart_JoinsCallAndActivates(t *testing.T) {
	f := newFixture(t)
	c := startSession(t, f, student())

	snap := c.Snapshot()
	if snap.State != StateActive {
		t.Fatalf("state %q, want active", snap.State)
	}
	if snap.Elapsed != "00:00" {
		t.Fatalf("elapsed %q, want 00:00", snap.Elapsed)
	}
	if len(snap.Participants) != 1 || !snap.Participants[0].IsLocal {
		t.Fatalf("unexpected roster: %+v", snap.Participants)
	}
	if _, ok := f.transport.Call("room-1"); !ok {
		t.Fatalf("expected call joined in room-1")
	}
}

func TestStart_UnknownLesson(t *testing.T) {
	f := newFixture(t)
	if _, err := Start(context.Background(), f.cfg, "lsn-missing", student()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStart_NonParticipantRejected(t *testing.T) {
	f := newFixture(t)
	v := Viewer{ID: "someone-else", DisplayName: "Nos Y", Role: "student"}
	if _, err := Start(context.Background(), f.cfg, "lsn-1", v); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if _, ok := f.transport.Call("room-1"); ok {
		t.Fatalf("rejected session must not join the call")
	}
}

func TestStart_MissingTutorAccount(t *testing.T) {
	f := newFixture(t)
	delete(f.repo.Profiles, "tut-1")
	if _, err := Start(context.Background(), f.cfg, "lsn-1", student()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStart_InvalidTutorProfile(t *testing.T) {
	f := newFixture(t)

	f.repo.Profiles["tut-1"] = lesson.TutorProfile{UserID: "tut-1", Role: "student", HourlyRate: 5000}
	if _, err := Start(context.Background(), f.cfg, "lsn-1", student()); !errors.Is(err, ErrInvalidTutorProfile) {
		t.Fatalf("wrong role: err = %v, want ErrInvalidTutorProfile", err)
	}

	f.repo.Profiles["tut-1"] = lesson.TutorProfile{UserID: "tut-1", Role: "tutor", HourlyRate: 0}
	if _, err := Start(context.Background(), f.cfg, "lsn-1", student()); !errors.Is(err, ErrInvalidTutorProfile) {
		t.Fatalf("zero rate: err = %v, want ErrInvalidTutorProfile", err)
	}
}

func TestSendMessage_OwnMessageArrivesViaEcho(t *testing.T) {
	f := newFixture(t)
	c := startSession(t, f, student())

	snap, err := c.SendMessage(context.Background(), "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(snap.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(snap.Messages))
	}
	msg := snap.Messages[0]
	if !msg.IsLocal || msg.Text != "hello" || msg.Sender != "Chikondi Banda" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestChat_RemoteMessageNotLocal(t *testing.T) {
	f := newFixture(t)
	c := startSession(t, f, student())

	call, _ := f.transport.Call("room-1")
	call.DeliverText("remote-9", "Thoko Phiri", "hi there")

	snap := c.Snapshot()
	if len(snap.Messages) != 1 || snap.Messages[0].IsLocal {
		t.Fatalf("unexpected messages: %+v", snap.Messages)
	}
}

func TestRoster_FullSnapshotReplaces(t *testing.T) {
	f := newFixture(t)
	c := startSession(t, f, student())

	call, _ := f.transport.Call("room-1")
	call.AddParticipant(calltransport.Participant{ID: "remote-9", DisplayName: "Thoko Phiri"})
	if got := len(c.Snapshot().Participants); got != 2 {
		t.Fatalf("roster = %d, want 2", got)
	}

	call.RemoveParticipant("remote-9")
	if got := len(c.Snapshot().Participants); got != 1 {
		t.Fatalf("roster = %d after leave, want 1", got)
	}
}

func TestToggleTranscription_RequiresAudioTrack(t *testing.T) {
	f := newFixture(t)
	c := startSession(t, f, student())

	if _, err := c.ToggleTranscription(context.Background()); !errors.Is(err, ErrNoAudioTrack) {
		t.Fatalf("err = %v, want ErrNoAudioTrack", err)
	}
}

func TestToggleTranscription_StartPumpStop(t *testing.T) {
	f := newFixture(t)
	c := startSession(t, f, student())

	call, _ := f.transport.Call("room-1")
	track := calltransport.NewStaticAudioTrack(4)
	call.SetAudioTrack(track)

	snap, err := c.ToggleTranscription(context.Background())
	if err != nil {
		t.Fatalf("toggle on: %v", err)
	}
	if !snap.TranscriptionOn {
		t.Fatalf("expected transcription on")
	}
	if len(f.channel.Started) != 1 || f.channel.Started[0] != "lsn-1" {
		t.Fatalf("started sessions: %v", f.channel.Started)
	}
	if meta := f.channel.Metadata["lsn-1"]; meta.Subject != "Mathematics" {
		t.Fatalf("metadata: %+v", meta)
	}
	if !hasNote(snap.Notes, NoteSystem, "Started recording and transcription.") {
		t.Fatalf("missing start note: %+v", snap.Notes)
	}

	track.Push([]byte("pcm-segment"))
	waitFor(t, func() bool { return f.channel.ChunkCount("lsn-1") == 1 })

	snap, err = c.ToggleTranscription(context.Background())
	if err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	if snap.TranscriptionOn {
		t.Fatalf("expected transcription off")
	}
	if len(f.channel.Stopped) != 1 || len(f.channel.Summaries) != 1 {
		t.Fatalf("stopped=%v summaries=%v", f.channel.Stopped, f.channel.Summaries)
	}
	if !track.Stopped() {
		t.Fatalf("audio track should be stopped")
	}
	if !hasNote(snap.Notes, NoteSystem, "Stopped recording and transcription.") {
		t.Fatalf("missing stop note: %+v", snap.Notes)
	}
}

func TestToggleTranscription_StartFailureStaysOff(t *testing.T) {
	f := newFixture(t)
	f.channel.StartErr = errors.New("upstream unavailable")
	c := startSession(t, f, student())

	call, _ := f.transport.Call("room-1")
	call.SetAudioTrack(calltransport.NewStaticAudioTrack(1))

	snap, err := c.ToggleTranscription(context.Background())
	if err != nil {
		t.Fatalf("start failure must not be fatal: %v", err)
	}
	if snap.TranscriptionOn {
		t.Fatalf("transcription should stay off")
	}
	found := false
	for _, n := range snap.Notes {
		if n.Kind == NoteSystem && strings.Contains(n.Text, "Could not start transcription") {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing failure note: %+v", snap.Notes)
	}
}

func TestTranscriptionEvents_AppendAsNotes(t *testing.T) {
	f := newFixture(t)
	c := startSession(t, f, student())

	call, _ := f.transport.Call("room-1")
	call.SetAudioTrack(calltransport.NewStaticAudioTrack(1))
	if _, err := c.ToggleTranscription(context.Background()); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	f.channel.Emit(transcription.Event{Kind: transcription.EventTranscriptChunk, Text: "so, derivatives"})
	f.channel.Emit(transcription.Event{Kind: transcription.EventAINote, Text: "Covered chain rule"})
	f.channel.Emit(transcription.Event{Kind: transcription.EventFinalSummary, Text: "Solid progress overall"})

	snap := c.Snapshot()
	if !hasNote(snap.Notes, NoteTranscript, "so, derivatives") ||
		!hasNote(snap.Notes, NoteAI, "Covered chain rule") ||
		!hasNote(snap.Notes, NoteFinalSummary, "Solid progress overall") {
		t.Fatalf("notes missing kinds: %+v", snap.Notes)
	}
}

// addChemistryLesson seeds a second lesson sharing the fixture's tutor,
// transport, channel and mux.
func addChemistryLesson(f *fixture) {
	f.repo.Lessons["lsn-2"] = lesson.Lesson{
		ID:            "lsn-2",
		TutorID:       "tut-1",
		StudentID:     "stu-2",
		Subject:       "Chemistry",
		RoomID:        "room-2",
		Status:        lesson.StatusScheduled,
		PaymentStatus: lesson.PaymentPending,
	}
}

func secondStudent() Viewer {
	return Viewer{ID: "stu-2", DisplayName: "Mary Kachale", Email: "mary@example.com", Role: "student"}
}

func TestTranscriptionEvents_ScopedToOwnSession(t *testing.T) {
	f := newFixture(t)
	addChemistryLesson(f)
	a := startSession(t, f, student())
	b, err := Start(context.Background(), f.cfg, "lsn-2", secondStudent())
	if err != nil {
		t.Fatalf("start second session: %v", err)
	}

	for _, room := range []string{"room-1", "room-2"} {
		call, _ := f.transport.Call(room)
		call.SetAudioTrack(calltransport.NewStaticAudioTrack(1))
	}
	if _, err := a.ToggleTranscription(context.Background()); err != nil {
		t.Fatalf("toggle a: %v", err)
	}
	if _, err := b.ToggleTranscription(context.Background()); err != nil {
		t.Fatalf("toggle b: %v", err)
	}

	f.channel.Emit(transcription.Event{SessionID: "lsn-1", Kind: transcription.EventAINote, Text: "chain rule recap"})

	if !hasNote(a.Snapshot().Notes, NoteAI, "chain rule recap") {
		t.Fatalf("own session missed its note: %+v", a.Snapshot().Notes)
	}
	for _, n := range b.Snapshot().Notes {
		if n.Kind == NoteAI {
			t.Fatalf("note leaked into another session: %+v", n)
		}
	}

	if _, err := a.Leave(context.Background()); err != nil {
		t.Fatalf("leave a: %v", err)
	}
	if _, err := b.Leave(context.Background()); err != nil {
		t.Fatalf("leave b: %v", err)
	}
	if got := f.repo.SavedNotes["lsn-2"]; len(got) != 0 {
		t.Fatalf("lesson 2 persisted foreign notes: %+v", got)
	}
	if got := f.repo.SavedNotes["lsn-1"]; len(got) != 1 {
		t.Fatalf("lesson 1 saved %d notes, want 1", len(got))
	}
}

func TestTranscriptionEvents_IgnoredBeforeFirstStart(t *testing.T) {
	f := newFixture(t)
	c := startSession(t, f, student())

	// Never toggled on, so even an unattributed event is not ours.
	f.channel.Emit(transcription.Event{Kind: transcription.EventAINote, Text: "someone else's lesson"})

	if n := len(c.Snapshot().Notes); n != 0 {
		t.Fatalf("%d notes recorded without transcription, want 0", n)
	}
	if _, err := c.Leave(context.Background()); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if got := f.repo.SavedNotes["lsn-1"]; len(got) != 0 {
		t.Fatalf("persisted notes without transcription: %+v", got)
	}
}

func TestLeave_TutorClosesImmediately(t *testing.T) {
	f := newFixture(t)
	c := startSession(t, f, tutor())

	snap, err := c.Leave(context.Background())
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if snap.State != StateClosed {
		t.Fatalf("state %q, want closed", snap.State)
	}
	if snap.RedirectTo != "/mylessons" {
		t.Fatalf("redirect %q, want /mylessons", snap.RedirectTo)
	}

	call, _ := f.transport.Call("room-1")
	if !call.Left() {
		t.Fatalf("call should be released")
	}
	if got := f.repo.Lessons["lsn-1"].Status; got != lesson.StatusCompleted {
		t.Fatalf("lesson status %q, want completed", got)
	}
}

func TestLeave_StudentEntersRatingPrompt(t *testing.T) {
	f := newFixture(t)
	c := startSession(t, f, student())

	snap, err := c.Leave(context.Background())
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if snap.State != StateRatingPrompt {
		t.Fatalf("state %q, want rating_prompt", snap.State)
	}
	if snap.RedirectTo != "" {
		t.Fatalf("student should not be redirected before rating, got %q", snap.RedirectTo)
	}
}

func TestLeave_PersistsOnlyGeneratedNotes(t *testing.T) {
	f := newFixture(t)
	c := startSession(t, f, student())

	call, _ := f.transport.Call("room-1")
	call.SetAudioTrack(calltransport.NewStaticAudioTrack(1))
	if _, err := c.ToggleTranscription(context.Background()); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	f.channel.Emit(transcription.Event{Kind: transcription.EventTranscriptChunk, Text: "raw words"})
	f.channel.Emit(transcription.Event{Kind: transcription.EventAINote, Text: "Covered chain rule"})
	f.channel.Emit(transcription.Event{Kind: transcription.EventFinalSummary, Text: "Good session"})

	if _, err := c.Leave(context.Background()); err != nil {
		t.Fatalf("leave: %v", err)
	}

	saved := f.repo.SavedNotes["lsn-1"]
	if len(saved) != 2 {
		t.Fatalf("saved %d notes, want 2 (ai_note + final_summary): %+v", len(saved), saved)
	}
	for _, n := range saved {
		if n.Kind != string(NoteAI) && n.Kind != string(NoteFinalSummary) {
			t.Fatalf("unexpected persisted kind %q", n.Kind)
		}
	}
	if f.repo.SavedBy["lsn-1"] != "stu-1" {
		t.Fatalf("saved by %q, want stu-1", f.repo.SavedBy["lsn-1"])
	}
	if !f.repo.Lessons["lsn-1"].HasAINotes {
		t.Fatalf("has_ai_notes should be set")
	}
}

func TestLeave_StorageFailuresAreBestEffort(t *testing.T) {
	f := newFixture(t)
	f.repo.FailMarkCompleted = errors.New("db down")
	f.repo.FailSaveNotes = errors.New("db down")
	c := startSession(t, f, student())

	call, _ := f.transport.Call("room-1")
	call.SetAudioTrack(calltransport.NewStaticAudioTrack(1))
	if _, err := c.ToggleTranscription(context.Background()); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	f.channel.Emit(transcription.Event{Kind: transcription.EventAINote, Text: "note"})

	snap, err := c.Leave(context.Background())
	if err != nil {
		t.Fatalf("leave must tolerate storage failure: %v", err)
	}
	if snap.State != StateRatingPrompt {
		t.Fatalf("state %q, want rating_prompt", snap.State)
	}
}

func TestLeave_TwiceRejected(t *testing.T) {
	f := newFixture(t)
	c := startSession(t, f, tutor())
	if _, err := c.Leave(context.Background()); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if _, err := c.Leave(context.Background()); !errors.Is(err, ErrBadState) {
		t.Fatalf("err = %v, want ErrBadState", err)
	}
}

func TestSubmitRating_InvalidStarsLeavesPromptOpen(t *testing.T) {
	f := newFixture(t)
	c := startSession(t, f, student())
	if _, err := c.Leave(context.Background()); err != nil {
		t.Fatalf("leave: %v", err)
	}

	if _, err := c.SubmitRating(context.Background(), 6); !errors.Is(err, rating.ErrInvalidRating) {
		t.Fatalf("err = %v, want ErrInvalidRating", err)
	}
	if got := c.Snapshot().State; got != StateRatingPrompt {
		t.Fatalf("state %q, want rating_prompt after invalid submit", got)
	}

	if _, err := c.SubmitRating(context.Background(), 4); err != nil {
		t.Fatalf("retry submit: %v", err)
	}
}

func TestSubmitRating_StartsCheckout(t *testing.T) {
	f := newFixture(t)
	c := startSession(t, f, student())
	if _, err := c.Leave(context.Background()); err != nil {
		t.Fatalf("leave: %v", err)
	}

	snap, err := c.SubmitRating(context.Background(), 5)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if snap.State != StatePaymentInFlight {
		t.Fatalf("state %q, want payment_in_flight", snap.State)
	}
	if snap.Payment == nil || snap.Payment.CheckoutURL == "" {
		t.Fatalf("missing checkout url: %+v", snap.Payment)
	}
	if snap.RedirectTo != snap.Payment.CheckoutURL {
		t.Fatalf("redirect should point at checkout")
	}

	got := f.ratings.Ratings()
	if len(got) != 1 || got[0].Stars != 5 || got[0].TutorID != "tut-1" {
		t.Fatalf("unexpected ratings: %+v", got)
	}

	reqs := f.gateway.Requests()
	if len(reqs) != 1 {
		t.Fatalf("checkout requests = %d, want 1", len(reqs))
	}
	req := reqs[0]
	if !strings.HasPrefix(req.TxRef, "tutorme_") {
		t.Fatalf("tx_ref %q missing prefix", req.TxRef)
	}
	if req.Amount != 5000 || req.Currency != "MWK" {
		t.Fatalf("amount/currency: %+v", req)
	}
	if req.FirstName != "Chikondi" || req.LastName != "Banda" {
		t.Fatalf("customer name: %+v", req)
	}
}

func TestSubmitRating_SecondSubmitIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.gateway.NotReady = true
	c := startSession(t, f, student())
	if _, err := c.Leave(context.Background()); err != nil {
		t.Fatalf("leave: %v", err)
	}

	if _, err := c.SubmitRating(context.Background(), 4); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := c.SubmitRating(context.Background(), 2); err != nil {
		t.Fatalf("repeat submit should be a no-op: %v", err)
	}
	if got := f.ratings.Ratings(); len(got) != 1 || got[0].Stars != 4 {
		t.Fatalf("unexpected ratings: %+v", got)
	}
}

func TestSkipRating_SkipsStarsButStillPays(t *testing.T) {
	f := newFixture(t)
	c := startSession(t, f, student())
	if _, err := c.Leave(context.Background()); err != nil {
		t.Fatalf("leave: %v", err)
	}

	snap, err := c.SkipRating(context.Background())
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if snap.State != StatePaymentInFlight {
		t.Fatalf("state %q, want payment_in_flight", snap.State)
	}
	if len(f.ratings.Ratings()) != 0 {
		t.Fatalf("skip must not record a rating")
	}
	if len(f.gateway.Requests()) != 1 {
		t.Fatalf("skip must still start checkout")
	}
}

func TestSendMessage_BlankIsNoOp(t *testing.T) {
	f := newFixture(t)
	c := startSession(t, f, student())

	snap, err := c.SendMessage(context.Background(), "   ")
	if err != nil {
		t.Fatalf("blank send: %v", err)
	}
	if len(snap.Messages) != 0 {
		t.Fatalf("blank input must not produce a message: %+v", snap.Messages)
	}
	call, _ := f.transport.Call("room-1")
	if len(call.Sent()) != 0 {
		t.Fatalf("blank input must not reach the transport")
	}
}

func TestClose_FromActiveDisposesCall(t *testing.T) {
	f := newFixture(t)
	c := startSession(t, f, student())

	snap, err := c.Close(context.Background())
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if snap.State != StateClosed {
		t.Fatalf("state %q, want closed", snap.State)
	}
	call, _ := f.transport.Call("room-1")
	if !call.Left() {
		t.Fatalf("call should be released on dispose")
	}
	if got := f.repo.Lessons["lsn-1"].Status; got == lesson.StatusCompleted {
		t.Fatalf("dispose must not run the completion checkpoint")
	}
}

func TestInitiatePayment_GatewayNotReady(t *testing.T) {
	f := newFixture(t)
	f.gateway.NotReady = true
	c := startSession(t, f, student())
	if _, err := c.Leave(context.Background()); err != nil {
		t.Fatalf("leave: %v", err)
	}

	if _, err := c.InitiatePayment(context.Background()); !errors.Is(err, ErrPaymentSystemNotReady) {
		t.Fatalf("err = %v, want ErrPaymentSystemNotReady", err)
	}
}

func TestPaymentSuccess_UpdatesLessonAndCloses(t *testing.T) {
	f := newFixture(t)
	c := startSession(t, f, student())
	if _, err := c.Leave(context.Background()); err != nil {
		t.Fatalf("leave: %v", err)
	}
	snap, err := c.SubmitRating(context.Background(), 5)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	delivered := f.mux.Dispatch(payment.Result{
		Kind:          payment.MessageResponse,
		Status:        payment.StatusSuccessful,
		TxRef:         snap.Payment.TxRef,
		TransactionID: "pc-tx-77",
		Amount:        5000,
	})
	if !delivered {
		t.Fatalf("result should reach the session")
	}

	final := c.Snapshot()
	if final.State != StateClosed {
		t.Fatalf("state %q, want closed", final.State)
	}
	if final.RedirectTo != "/mylessons" {
		t.Fatalf("redirect %q, want /mylessons", final.RedirectTo)
	}

	les := f.repo.Lessons["lsn-1"]
	if les.PaymentStatus != lesson.PaymentCompleted {
		t.Fatalf("payment status %q, want completed", les.PaymentStatus)
	}
	if les.PaymentReference != "pc-tx-77" || les.PaymentAmount != 5000 {
		t.Fatalf("payment fields: %+v", les)
	}
	if les.PaymentCompletedAt == nil {
		t.Fatalf("payment completion time missing")
	}
}

func TestPaymentFailure_AllowsRetry(t *testing.T) {
	f := newFixture(t)
	c := startSession(t, f, student())
	if _, err := c.Leave(context.Background()); err != nil {
		t.Fatalf("leave: %v", err)
	}
	snap, err := c.SubmitRating(context.Background(), 3)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	firstTx := snap.Payment.TxRef

	f.mux.Dispatch(payment.Result{Kind: payment.MessageResponse, Status: "failed", TxRef: firstTx})

	snap = c.Snapshot()
	if snap.State != StatePaymentResolved {
		t.Fatalf("state %q, want payment_resolved", snap.State)
	}
	if snap.Payment.Error != "Payment failed. Please try again." {
		t.Fatalf("error %q", snap.Payment.Error)
	}

	snap, err = c.InitiatePayment(context.Background())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if snap.State != StatePaymentInFlight {
		t.Fatalf("state %q, want payment_in_flight", snap.State)
	}
	if snap.Payment.TxRef == firstTx {
		t.Fatalf("retry must use a fresh tx_ref")
	}
}

func TestPaymentFailure_CustomMessagePreserved(t *testing.T) {
	f := newFixture(t)
	c := startSession(t, f, student())
	if _, err := c.Leave(context.Background()); err != nil {
		t.Fatalf("leave: %v", err)
	}
	snap, _ := c.SubmitRating(context.Background(), 3)

	f.mux.Dispatch(payment.Result{Kind: payment.MessageResponse, Status: "failed", TxRef: snap.Payment.TxRef, Message: "Insufficient funds"})

	if got := c.Snapshot().Payment.Error; got != "Insufficient funds" {
		t.Fatalf("error %q, want gateway message", got)
	}
}

func TestPaymentClosed_TreatedAsCancellation(t *testing.T) {
	f := newFixture(t)
	c := startSession(t, f, student())
	if _, err := c.Leave(context.Background()); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if _, err := c.SubmitRating(context.Background(), 3); err != nil {
		t.Fatalf("submit: %v", err)
	}

	f.mux.Dispatch(payment.Result{Kind: payment.MessageClosed})

	snap := c.Snapshot()
	if snap.State != StatePaymentResolved {
		t.Fatalf("state %q, want payment_resolved", snap.State)
	}
	if snap.Payment.Error != "Payment was cancelled or closed." {
		t.Fatalf("error %q", snap.Payment.Error)
	}
	if f.repo.Lessons["lsn-1"].PaymentStatus == lesson.PaymentCompleted {
		t.Fatalf("cancelled payment must not complete the lesson")
	}
}

func TestPaymentClosed_OnlyResolvesMatchingAttempt(t *testing.T) {
	f := newFixture(t)
	addChemistryLesson(f)
	a := startSession(t, f, student())
	b, err := Start(context.Background(), f.cfg, "lsn-2", secondStudent())
	if err != nil {
		t.Fatalf("start second session: %v", err)
	}

	for _, c := range []*Controller{a, b} {
		if _, err := c.Leave(context.Background()); err != nil {
			t.Fatalf("leave: %v", err)
		}
		if _, err := c.SubmitRating(context.Background(), 4); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	// Without a tx_ref the close cannot be attributed, so neither
	// attempt may fail on its account.
	f.mux.Dispatch(payment.Result{Kind: payment.MessageClosed})
	if got := a.Snapshot().State; got != StatePaymentInFlight {
		t.Fatalf("session a state %q, want payment_in_flight", got)
	}
	if got := b.Snapshot().State; got != StatePaymentInFlight {
		t.Fatalf("session b state %q, want payment_in_flight", got)
	}

	f.mux.Dispatch(payment.Result{Kind: payment.MessageClosed, TxRef: a.Snapshot().Payment.TxRef})
	if got := a.Snapshot().State; got != StatePaymentResolved {
		t.Fatalf("session a state %q, want payment_resolved", got)
	}
	if got := b.Snapshot().State; got != StatePaymentInFlight {
		t.Fatalf("session b state %q, want payment_in_flight", got)
	}
}

func TestClose_ReleasesChannelSubscription(t *testing.T) {
	f := newFixture(t)
	c := startSession(t, f, student())
	if got := f.channel.SubscriberCount(); got != 1 {
		t.Fatalf("%d subscribers while active, want 1", got)
	}
	if _, err := c.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := f.channel.SubscriberCount(); got != 0 {
		t.Fatalf("%d subscribers after close, want 0", got)
	}
}

func TestPaymentResult_DuplicateAppliesOnce(t *testing.T) {
	f := newFixture(t)
	c := startSession(t, f, student())
	if _, err := c.Leave(context.Background()); err != nil {
		t.Fatalf("leave: %v", err)
	}
	snap, _ := c.SubmitRating(context.Background(), 5)

	res := payment.Result{Kind: payment.MessageResponse, Status: payment.StatusSuccessful, TxRef: snap.Payment.TxRef, TransactionID: "pc-tx-1", Amount: 5000}
	f.mux.Dispatch(res)

	// replay straight into the handler, past the mux dedupe
	c.handlePaymentResult(payment.Result{Kind: payment.MessageResponse, Status: "failed", TxRef: snap.Payment.TxRef})

	les := f.repo.Lessons["lsn-1"]
	if les.PaymentStatus != lesson.PaymentCompleted || les.PaymentReference != "pc-tx-1" {
		t.Fatalf("replay must not overwrite resolved attempt: %+v", les)
	}
}

func TestPaymentResult_MismatchedTxRefIgnored(t *testing.T) {
	f := newFixture(t)
	c := startSession(t, f, student())
	if _, err := c.Leave(context.Background()); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if _, err := c.SubmitRating(context.Background(), 5); err != nil {
		t.Fatalf("submit: %v", err)
	}

	c.handlePaymentResult(payment.Result{Kind: payment.MessageResponse, Status: payment.StatusSuccessful, TxRef: "tutorme_other"})

	if got := c.Snapshot().State; got != StatePaymentInFlight {
		t.Fatalf("state %q, mismatched result must not resolve the attempt", got)
	}
}

func TestPaymentVerificationFailure(t *testing.T) {
	f := newFixture(t)
	f.repo.FailUpdatePayment = errors.New("db down")
	c := startSession(t, f, student())
	if _, err := c.Leave(context.Background()); err != nil {
		t.Fatalf("leave: %v", err)
	}
	snap, _ := c.SubmitRating(context.Background(), 5)

	f.mux.Dispatch(payment.Result{Kind: payment.MessageResponse, Status: payment.StatusSuccessful, TxRef: snap.Payment.TxRef, TransactionID: "pc-tx-1"})

	snap = c.Snapshot()
	if snap.State != StatePaymentResolved {
		t.Fatalf("state %q, want payment_resolved", snap.State)
	}
	if snap.Payment.Error != "Payment verification failed. Please contact support." {
		t.Fatalf("error %q", snap.Payment.Error)
	}
	if snap.Payment.Status != string(payment.AttemptFailed) {
		t.Fatalf("attempt status %q, want failed", snap.Payment.Status)
	}
}

func TestClose_DuringPaymentDefersUntilResult(t *testing.T) {
	f := newFixture(t)
	c := startSession(t, f, student())
	if _, err := c.Leave(context.Background()); err != nil {
		t.Fatalf("leave: %v", err)
	}
	snap, _ := c.SubmitRating(context.Background(), 5)

	closing, err := c.Close(context.Background())
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closing.State != StatePaymentInFlight {
		t.Fatalf("close must defer while payment pending, state %q", closing.State)
	}

	f.mux.Dispatch(payment.Result{Kind: payment.MessageResponse, Status: payment.StatusSuccessful, TxRef: snap.Payment.TxRef, TransactionID: "pc-tx-2"})

	final := c.Snapshot()
	if final.State != StateClosed {
		t.Fatalf("state %q, want closed after deferred result", final.State)
	}
	if f.repo.Lessons["lsn-1"].PaymentStatus != lesson.PaymentCompleted {
		t.Fatalf("late result must still land on the lesson")
	}
}

func hasNote(notes []MeetingNote, kind NoteKind, text string) bool {
	for _, n := range notes {
		if n.Kind == kind && n.Text == text {
			return true
		}
	}
	return false
}
