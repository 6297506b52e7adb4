package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/yoomemory/internal/models"
	"github.com/yoockh/yoomemory/internal/services"
	"github.com/yoockh/yoomemory/internal/utils"
)

type SessionHandler struct {
	svc      services.SessionService
	profiles services.ProfileService
}

func NewSessionHandler(svc services.SessionService, profiles services.ProfileService) *SessionHandler {
	return &SessionHandler{svc: svc, profiles: profiles}
}

type StartSessionResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	StartedAt string `json:"started_at"`
}

func (h *SessionHandler) Start(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if _, err := h.profiles.GetOrCreate(ctx, userID); err != nil {
		writeError(c, err)
		return
	}
	sess, err := h.svc.GetOrCreateActive(ctx, userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, StartSessionResponse{
		SessionID: sess.ID,
		Status:    string(sess.Status),
		StartedAt: sess.StartedAt.UTC().Format(time.RFC3339),
	})
}

// owned loads a session and checks it belongs to the caller.
func (h *SessionHandler) owned(ctx context.Context, op, userID, sessionID string) (*models.Session, error) {
	sess, err := h.svc.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, utils.E(utils.CodeForbidden, op, "forbidden", nil)
	}
	return sess, nil
}

func (h *SessionHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sess, err := h.owned(c.Request.Context(), "SessionHandler.Get", userID, c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *SessionHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	rows, err := h.svc.ListByUser(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": rows})
}

func (h *SessionHandler) End(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	sessionID := c.Param("session_id")

	if _, err := h.owned(ctx, "SessionHandler.End", userID, sessionID); err != nil {
		writeError(c, err)
		return
	}

	ended, err := h.svc.End(ctx, sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ended)
}
