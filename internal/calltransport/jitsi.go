package calltransport

import (
	"context"
	"errors"
)

// JitsiTransport is a placeholder adapter for the Jitsi conferencing
// provider. The production deployment embeds the Jitsi room in the UI layer;
// the server-side adapter exists so the session controller is wired against
// the Transport interface and a headless implementation (lib-jitsi-meet
// over a media bridge) can land without touching business logic.
// TODO: wire the Jitsi media bridge client and room credentials from config.
type JitsiTransport struct {
	domain string
}

func NewJitsiTransport(domain string) *JitsiTransport {
	return &JitsiTransport{domain: domain}
}

func (t *JitsiTransport) Name() string { return "jitsi" }

func (t *JitsiTransport) Domain() string { return t.domain }

func (t *JitsiTransport) Join(ctx context.Context, roomID, displayName string) (Call, error) {
	if t.domain == "" {
		return nil, errors.New("calltransport: jitsi domain not configured")
	}
	return nil, errors.New("calltransport: jitsi server-side join not implemented")
}
