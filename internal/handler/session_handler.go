package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gym-auth-api/internal/models"
	appErrors "github.com/noah-isme/gym-auth-api/pkg/errors"
	"github.com/noah-isme/gym-auth-api/pkg/response"
)

type sessionService interface {
	Sessions(ctx context.Context, userID string) ([]models.SessionInfo, error)
	RevokeUserSessions(ctx context.Context, actorID, targetID string) (int64, error)
}

// SessionHandler exposes the live sessions of users.
type SessionHandler struct {
	service sessionService
}

// NewSessionHandler creates a new handler.
func NewSessionHandler(svc sessionService) *SessionHandler {
	return &SessionHandler{service: svc}
}

// List godoc
// @Summary List sessions
// @Description Live refresh sessions of the authenticated user, newest first
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	sessions, err := h.service.Sessions(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, sessions, nil, map[string]interface{}{"count": len(sessions)})
}

// RevokeAll godoc
// @Summary Revoke user sessions
// @Description Revoke every refresh session of a user
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /users/{id}/sessions [delete]
func (h *SessionHandler) RevokeAll(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	targetID := c.Param("id")
	if targetID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "user id is required"))
		return
	}

	count, err := h.service.RevokeUserSessions(c.Request.Context(), claims.UserID, targetID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"revoked": count}, nil)
}
