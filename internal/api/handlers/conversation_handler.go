package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/yoomemory/internal/models"
	"github.com/yoockh/yoomemory/internal/services"
)

type ConversationHandler struct {
	svc services.ConversationService
}

func NewConversationHandler(svc services.ConversationService) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

type StoreMessageRequest struct {
	SessionID   string         `json:"session_id"`
	Role        models.Role    `json:"role" binding:"required"`
	Content     string         `json:"content" binding:"required"`
	Emotion     *string        `json:"emotion,omitempty"`
	SafetyCheck map[string]any `json:"safety_check,omitempty"`
}

func (h *ConversationHandler) Store(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req StoreMessageRequest
	if !bindJSON(c, "ConversationHandler.Store", &req) {
		return
	}

	msg, err := h.svc.StoreMessage(c.Request.Context(), services.StoreMessageInput{
		UserID:      userID,
		SessionID:   req.SessionID,
		Role:        req.Role,
		Content:     req.Content,
		Emotion:     req.Emotion,
		SafetyCheck: req.SafetyCheck,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// History serves both /messages?session_id= and /sessions/:session_id/messages.
// Messages come back oldest first.
func (h *ConversationHandler) History(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sessionID := c.Param("session_id")
	if sessionID == "" {
		sessionID = c.Query("session_id")
	}
	limit := queryInt(c, "limit", 50, 500)

	rows, err := h.svc.GetConversationHistory(c.Request.Context(), userID, sessionID, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"messages":   rows,
	})
}
