package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/yoomemory/internal/services"
)

type ChatHandler struct {
	svc services.ChatService
}

func NewChatHandler(svc services.ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

type TurnRequest struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content" binding:"required"`
	MaxTokens int    `json:"max_tokens"`
}

func (h *ChatHandler) Turn(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req TurnRequest
	if !bindJSON(c, "ChatHandler.Turn", &req) {
		return
	}

	res, err := h.svc.Turn(c.Request.Context(), services.TurnInput{
		UserID:    userID,
		SessionID: req.SessionID,
		Content:   req.Content,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
