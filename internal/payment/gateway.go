package payment

import "context"

// Gateway wraps the redirect-based external checkout.
//
// Initiate's only product is a redirect: the checkout outcome is never a
// direct return value. Results arrive later, out-of-band, on the webhook and
// are routed through the ResultMux to whichever session initiated the
// matching tx_ref.
type Gateway interface {
	Name() string

	// Ready reports whether the gateway is configured and usable. Initiating
	// while not ready must fail before any attempt state is created.
	Ready() bool

	Initiate(ctx context.Context, req CheckoutRequest) (Redirect, error)
}

// CheckoutRequest carries everything the hosted checkout page needs.
type CheckoutRequest struct {
	TxRef    string
	Amount   int64
	Currency string

	Email     string
	FirstName string
	LastName  string

	Title       string
	Description string

	LessonID string
	UserID   string
}

// Redirect is the navigation side effect of initiating a checkout. The UI
// layer owns actually performing it.
type Redirect struct {
	URL string
}
