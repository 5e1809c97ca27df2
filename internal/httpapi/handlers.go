package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tutorme-platform/internal/auth"
	"tutorme-platform/internal/rating"
	"tutorme-platform/internal/session"
	"tutorme-platform/pkg/logger"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth     *auth.Manager
	Sessions *session.Manager
}

// --- Auth ---

type loginRequest struct {
	UserID      string `json:"user_id"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id and role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), auth.Identity{
		UserID:      req.UserID,
		Role:        req.Role,
		DisplayName: req.DisplayName,
		Email:       req.Email,
	})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Sessions ---

func (h Handlers) viewer(c *gin.Context) (session.Viewer, bool) {
	id, err := auth.IdentityFrom(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return session.Viewer{}, false
	}
	return session.Viewer{
		ID:          id.UserID,
		DisplayName: id.DisplayName,
		Email:       id.Email,
		Role:        id.Role,
	}, true
}

func (h Handlers) controller(c *gin.Context) (*session.Controller, bool) {
	v, ok := h.viewer(c)
	if !ok {
		return nil, false
	}
	ctrl, err := h.Sessions.Get(c.Param("lesson_id"), v.ID)
	if err != nil {
		writeSessionError(c, err)
		return nil, false
	}
	return ctrl, true
}

// JoinSession opens the viewer's controller for a lesson and returns the
// first snapshot.
func (h Handlers) JoinSession(c *gin.Context) {
	v, ok := h.viewer(c)
	if !ok {
		return
	}
	ctrl, err := h.Sessions.Open(c.Request.Context(), c.Param("lesson_id"), v)
	if err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ctrl.Snapshot())
}

func (h Handlers) GetSession(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ctrl.Snapshot())
}

type sendMessageRequest struct {
	// blank text is a controller-level no-op, not a binding error
	Text string `json:"text"`
}

func (h Handlers) SendMessage(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	snap, err := ctrl.SendMessage(c.Request.Context(), req.Text)
	if err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h Handlers) ToggleTranscription(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	snap, err := ctrl.ToggleTranscription(c.Request.Context())
	if err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h Handlers) LeaveSession(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	snap, err := ctrl.Leave(c.Request.Context())
	if err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

type submitRatingRequest struct {
	Stars *int `json:"stars" binding:"required"`
}

func (h Handlers) SubmitRating(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	var req submitRatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "stars required"})
		return
	}
	snap, err := ctrl.SubmitRating(c.Request.Context(), *req.Stars)
	if err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h Handlers) SkipRating(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	snap, err := ctrl.SkipRating(c.Request.Context())
	if err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h Handlers) InitiatePayment(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	snap, err := ctrl.InitiatePayment(c.Request.Context())
	if err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h Handlers) CloseSession(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	snap, err := ctrl.Close(c.Request.Context())
	if err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// writeSessionError maps domain errors onto HTTP statuses. Unknown errors
// are logged and become opaque 500s.
func writeSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrUnauthorized):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not a participant of this lesson"})
	case errors.Is(err, session.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "lesson or session not found"})
	case errors.Is(err, session.ErrInvalidTutorProfile):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "tutor profile unusable for billing"})
	case errors.Is(err, session.ErrSessionActive):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "session already active"})
	case errors.Is(err, session.ErrNoAudioTrack):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "no local audio track"})
	case errors.Is(err, session.ErrPaymentInFlight):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "payment already in flight"})
	case errors.Is(err, session.ErrBadState):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "operation not valid in current session state"})
	case errors.Is(err, session.ErrPaymentSystemNotReady):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "payment system not ready"})
	case errors.Is(err, session.ErrMissingContext):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "lesson or user context missing"})
	case errors.Is(err, rating.ErrInvalidRating):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "stars must be between 0 and 5"})
	default:
		logger.FromGin(c).Error("session operation failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
