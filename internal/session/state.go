package session

// State is the controller's lifecycle position. Transitions only move
// forward; there is no way back to Active once Leave has run.
type State string

const (
	StateInitializing State = "initializing"

	// StateRejected is terminal: session start failed validation and no
	// resources were acquired.
	StateRejected State = "rejected"

	StateActive State = "active"

	// StateRatingPrompt follows a student's Leave. The tutor skips this
	// state entirely.
	StateRatingPrompt State = "rating_prompt"

	StatePaymentInFlight State = "payment_in_flight"

	// StatePaymentResolved holds the attempt outcome. A failed attempt can
	// be retried from here; a successful one proceeds to close.
	StatePaymentResolved State = "payment_resolved"

	StateClosed State = "closed"
)

// allows reports whether op may run in s. Keeping the table in one place
// makes the forward-only shape reviewable.
func (s State) allows(op operation) bool {
	switch op {
	case opSendMessage, opToggleTranscription, opLeave:
		return s == StateActive
	case opSubmitRating, opSkipRating:
		return s == StateRatingPrompt
	case opInitiatePayment:
		return s == StateRatingPrompt || s == StatePaymentResolved
	case opClose:
		return s == StateActive || s == StateRatingPrompt || s == StatePaymentResolved || s == StatePaymentInFlight
	default:
		return false
	}
}

type operation int

const (
	opSendMessage operation = iota
	opToggleTranscription
	opLeave
	opSubmitRating
	opSkipRating
	opInitiatePayment
	opClose
)
