package payment

import (
	"context"
	"sync"
)

// MemoryGateway records checkout requests instead of reaching a processor.
// Tests pair it with a ResultMux to deliver outcomes by hand.
type MemoryGateway struct {
	mu       sync.Mutex
	requests []CheckoutRequest

	NotReady    bool
	InitiateErr error
}

func NewMemoryGateway() *MemoryGateway { return &MemoryGateway{} }

func (g *MemoryGateway) Name() string { return "memory" }

func (g *MemoryGateway) Ready() bool { return !g.NotReady }

func (g *MemoryGateway) Initiate(ctx context.Context, req CheckoutRequest) (Redirect, error) {
	if g.InitiateErr != nil {
		return Redirect{}, g.InitiateErr
	}
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	return Redirect{URL: "memory://checkout/" + req.TxRef}, nil
}

// Requests returns a copy of every initiated checkout.
func (g *MemoryGateway) Requests() []CheckoutRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]CheckoutRequest, len(g.requests))
	copy(out, g.requests)
	return out
}
