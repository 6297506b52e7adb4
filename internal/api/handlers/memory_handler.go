package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/yoomemory/internal/services"
	"github.com/yoockh/yoomemory/internal/utils"
)

// MemoryHandler exposes retrieval, context assembly and personalization.
type MemoryHandler struct {
	retrieval services.RetrievalService
	context   services.ContextService
	persona   services.PersonalizationService
}

func NewMemoryHandler(retrieval services.RetrievalService, ctxSvc services.ContextService, persona services.PersonalizationService) *MemoryHandler {
	return &MemoryHandler{retrieval: retrieval, context: ctxSvc, persona: persona}
}

func (h *MemoryHandler) Search(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, "MemoryHandler.Search", "q is required", nil))
		return
	}

	res, err := h.retrieval.Search(c.Request.Context(), userID, q, services.SearchOptions{
		TopK:      queryInt(c, "top_k", 0, 50),
		SessionID: c.Query("session_id"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if res == nil {
		res = []services.SearchResult{}
	}
	c.JSON(http.StatusOK, gin.H{"results": res})
}

type AssembleContextRequest struct {
	SessionID             string   `json:"session_id"`
	Query                 string   `json:"query"`
	MaxTokens             int      `json:"max_tokens"`
	TopK                  int      `json:"top_k"`
	MinSimilarity         *float64 `json:"min_similarity"`
	IncludeCurrentSession bool     `json:"include_current_session"`
	IncludeProfile        *bool    `json:"include_profile"`
	Format                bool     `json:"format"`
}

func (h *MemoryHandler) Context(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req AssembleContextRequest
	if !bindJSON(c, "MemoryHandler.Context", &req) {
		return
	}
	includeProfile := req.IncludeProfile == nil || *req.IncludeProfile

	pkg, err := h.context.AssembleContext(c.Request.Context(), services.AssembleRequest{
		UserID:                userID,
		SessionID:             req.SessionID,
		Query:                 req.Query,
		MaxTokens:             req.MaxTokens,
		TopK:                  req.TopK,
		MinSimilarity:         req.MinSimilarity,
		IncludeCurrentSession: req.IncludeCurrentSession,
		IncludeProfile:        includeProfile,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	resp := gin.H{"context": pkg}
	if req.Format {
		resp["prompt"] = h.context.FormatPrompt(pkg)
	}
	c.JSON(http.StatusOK, resp)
}

type AdaptRequest struct {
	Draft string `json:"draft" binding:"required"`
}

func (h *MemoryHandler) Adapt(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req AdaptRequest
	if !bindJSON(c, "MemoryHandler.Adapt", &req) {
		return
	}

	res, err := h.persona.AdaptResponse(c.Request.Context(), userID, req.Draft)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *MemoryHandler) Style(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	p, err := h.persona.DetectStyle(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *MemoryHandler) Engagement(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	score, allowed, err := h.persona.EngagementScore(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"score": score, "available": allowed})
}
