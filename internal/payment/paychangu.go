package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"tutorme-platform/internal/config"
)

// PayChanguGateway builds hosted-checkout redirects for the PayChangu
// popup flow. The adapter holds no business logic: amount, currency and
// tx_ref policy belong to the session controller.
type PayChanguGateway struct {
	publicKey   string
	checkoutURL string
	callbackURL string
	returnURL   string
}

func NewPayChanguGateway(cfg config.PaymentConfig) *PayChanguGateway {
	return &PayChanguGateway{
		publicKey:   cfg.PublicKey,
		checkoutURL: cfg.CheckoutURL,
		callbackURL: cfg.CallbackURL,
		returnURL:   cfg.ReturnURL,
	}
}

func (g *PayChanguGateway) Name() string { return "paychangu" }

func (g *PayChanguGateway) Ready() bool {
	return g != nil && g.publicKey != "" && g.checkoutURL != ""
}

func (g *PayChanguGateway) Initiate(ctx context.Context, req CheckoutRequest) (Redirect, error) {
	if !g.Ready() {
		return Redirect{}, errors.New("payment: paychangu gateway not configured")
	}
	if req.TxRef == "" {
		return Redirect{}, errors.New("payment: tx_ref required")
	}
	if req.Amount <= 0 {
		return Redirect{}, fmt.Errorf("payment: amount must be positive, got %d", req.Amount)
	}

	q := url.Values{}
	q.Set("public_key", g.publicKey)
	q.Set("tx_ref", req.TxRef)
	q.Set("amount", strconv.FormatInt(req.Amount, 10))
	q.Set("currency", req.Currency)
	if g.callbackURL != "" {
		q.Set("callback_url", g.callbackURL)
	}
	if g.returnURL != "" {
		q.Set("return_url", g.returnURL)
	}
	q.Set("email", req.Email)
	q.Set("first_name", req.FirstName)
	q.Set("last_name", req.LastName)
	q.Set("title", req.Title)
	q.Set("description", req.Description)
	q.Set("lessonId", req.LessonID)
	q.Set("userId", req.UserID)

	return Redirect{URL: g.checkoutURL + "/checkout?" + q.Encode()}, nil
}
