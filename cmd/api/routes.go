package main

import (
	"tutorme-platform/internal/auth"
	"tutorme-platform/internal/httpapi"
	"tutorme-platform/internal/payment"
	"tutorme-platform/internal/rbac"
	"tutorme-platform/internal/session"

	"github.com/gin-gonic/gin"
)

type httpDeps struct {
	auth     *auth.Manager
	sessions *session.Manager
	webhook  *payment.WebhookHandler
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, authMW gin.HandlerFunc, deps httpDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "live_sessions": deps.sessions.Len()})
	})

	// Gateway webhooks (public).
	// NOTE: This endpoint should be protected by PayChangu signature validation in production.
	r.POST("/webhooks/paychangu", deps.webhook.Handle)

	h := httpapi.Handlers{
		Auth:     deps.auth,
		Sessions: deps.sessions,
	}

	v1 := r.Group("/v1")

	// AUTH routes (token issuance).
	// NOTE: This is a placeholder login route; real credential validation is not implemented.
	v1.POST("/auth/login", h.Login)

	// protected API group
	sessions := v1.Group("/sessions/:lesson_id")
	sessions.Use(authMW)
	{
		sessions.POST("/join", h.JoinSession)
		sessions.GET("", h.GetSession)
		sessions.POST("/messages", h.SendMessage)
		sessions.POST("/transcription/toggle", h.ToggleTranscription)
		sessions.POST("/leave", h.LeaveSession)
		sessions.POST("/close", h.CloseSession)

		// Only the student side of a lesson rates and pays.
		rated := sessions.Group("")
		rated.Use(rbac.RequireAnyRole(rbac.RoleStudent))
		{
			rated.POST("/rating", h.SubmitRating)
			rated.POST("/rating/skip", h.SkipRating)
			rated.POST("/payment", h.InitiatePayment)
		}
	}
}
