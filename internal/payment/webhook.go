package payment

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// WebhookHandler ingests gateway callbacks and feeds them to the mux.
//
// The gateway retries webhooks on non-2xx, so the handler acknowledges
// everything it can parse, including results nobody is waiting for.
type WebhookHandler struct {
	Mux *ResultMux
	Log *slog.Logger

	// Dedupe is optional; when set, exact redeliveries are acknowledged
	// without dispatching.
	Dedupe func(ctx *gin.Context, key string, ttl time.Duration) (bool, error)

	// OnResult observes every dispatched result, after the mux. Used for
	// audit logging; failures there never affect the response.
	OnResult func(ctx *gin.Context, res Result)
}

type webhookEnvelope struct {
	Type     string          `json:"type" binding:"required"`
	Response webhookResponse `json:"response"`
}

type webhookResponse struct {
	Status        string `json:"status"`
	TxRef         string `json:"tx_ref"`
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount"`
	Message       string `json:"message"`
}

func (h *WebhookHandler) Handle(c *gin.Context) {
	var env webhookEnvelope
	if err := c.ShouldBindJSON(&env); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	kind := MessageKind(env.Type)
	switch kind {
	case MessageResponse:
		if env.Response.TxRef == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tx_ref required"})
			return
		}
	case MessageClosed:
		// no payload
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown message type"})
		return
	}

	res := Result{
		Kind:          kind,
		Status:        env.Response.Status,
		TxRef:         env.Response.TxRef,
		TransactionID: env.Response.TransactionID,
		Amount:        env.Response.Amount,
		Message:       env.Response.Message,
	}

	if kind == MessageResponse && h.Dedupe != nil {
		key := "payment:webhook:" + res.TxRef + ":" + res.Status + ":" + res.TransactionID
		first, err := h.Dedupe(c, key, 24*time.Hour)
		if err != nil {
			h.log().Warn("webhook dedupe unavailable, dispatching anyway", "error", err)
		} else if !first {
			c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
			return
		}
	}

	delivered := h.Mux.Dispatch(res)
	if !delivered {
		h.log().Info("payment result had no subscriber", "tx_ref", res.TxRef, "kind", string(res.Kind))
	}
	if h.OnResult != nil {
		h.OnResult(c, res)
	}
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

func (h *WebhookHandler) log() *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return slog.Default()
}
