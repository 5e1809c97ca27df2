package payment

import (
	"strings"
	"sync"
)

// ResultMux routes inbound gateway results to the session that initiated
// the matching attempt.
//
// Defenses required of this boundary:
// - a result for a tx_ref nobody registered is ignored, not an error
// - duplicate delivery of the same result applies idempotently (the mux
//   drops repeats; subscribers additionally guard their own state)
// - MessageClosed is routed by tx_ref like any other result; a payload
//   without one is delivered only when a single attempt is in flight and
//   dropped otherwise, so closing one checkout can never fail another
//   session's attempt
type ResultMux struct {
	mu   sync.Mutex
	subs map[string]func(Result)
	seen map[string]struct{}
}

func NewResultMux() *ResultMux {
	return &ResultMux{
		subs: map[string]func(Result){},
		seen: map[string]struct{}{},
	}
}

// Register subscribes a handler for results carrying txRef.
func (m *ResultMux) Register(txRef string, fn func(Result)) {
	if txRef == "" || fn == nil {
		return
	}
	m.mu.Lock()
	m.subs[txRef] = fn
	m.mu.Unlock()
}

func (m *ResultMux) Unregister(txRef string) {
	m.mu.Lock()
	delete(m.subs, txRef)
	// drop the resolved attempt's dedupe keys; retries register a fresh ref
	for key := range m.seen {
		if strings.HasPrefix(key, txRef+"|") {
			delete(m.seen, key)
		}
	}
	m.mu.Unlock()
}

// Dispatch delivers one inbound result. It reports whether any subscriber
// received it.
func (m *ResultMux) Dispatch(res Result) bool {
	switch res.Kind {
	case MessageResponse:
		m.mu.Lock()
		fn, ok := m.subs[res.TxRef]
		if ok {
			key := res.TxRef + "|" + res.Status + "|" + res.TransactionID
			if _, dup := m.seen[key]; dup {
				m.mu.Unlock()
				return false
			}
			m.seen[key] = struct{}{}
		}
		m.mu.Unlock()
		if !ok {
			return false
		}
		fn(res)
		return true

	case MessageClosed:
		m.mu.Lock()
		var fn func(Result)
		if res.TxRef != "" {
			fn = m.subs[res.TxRef]
		} else if len(m.subs) == 1 {
			// payload-less close is unambiguous only with one attempt open
			for _, f := range m.subs {
				fn = f
			}
		}
		m.mu.Unlock()
		if fn == nil {
			return false
		}
		fn(res)
		return true

	default:
		return false
	}
}
