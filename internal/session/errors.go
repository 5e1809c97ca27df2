package session

import "errors"

var (
	// ErrUnauthorized means the viewer is neither the lesson's tutor nor its
	// student. Admins get no bypass here; a session seat is personal.
	ErrUnauthorized = errors.New("session: viewer is not a lesson participant")

	// ErrNotFound covers both a missing lesson and a missing tutor account.
	ErrNotFound = errors.New("session: lesson not found")

	// ErrInvalidTutorProfile means the tutor account exists but cannot anchor
	// a billable session (wrong role, or no positive hourly rate).
	ErrInvalidTutorProfile = errors.New("session: tutor profile unusable for billing")

	// ErrNoAudioTrack means transcription was requested but the viewer has no
	// local audio capture to feed it.
	ErrNoAudioTrack = errors.New("session: no local audio track")

	// ErrPaymentSystemNotReady means the gateway is not configured or its
	// client assets failed to load.
	ErrPaymentSystemNotReady = errors.New("session: payment system not ready")

	// ErrMissingContext means payment was initiated without a loaded lesson
	// or an authenticated viewer.
	ErrMissingContext = errors.New("session: lesson or user context missing")

	ErrPaymentInFlight = errors.New("session: a payment attempt is already in flight")

	// ErrSessionActive means this viewer already holds a live controller for
	// the lesson.
	ErrSessionActive = errors.New("session: session already active")

	// ErrBadState rejects an operation the current lifecycle state does not
	// permit, like leaving twice or rating before leaving.
	ErrBadState = errors.New("session: operation not valid in current state")
)
