package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/yoomemory/internal/services"
	"github.com/yoockh/yoomemory/internal/workers"
)

type AdminHandler struct {
	sweeper   *workers.Sweeper
	retrieval services.RetrievalService
}

func NewAdminHandler(sweeper *workers.Sweeper, retrieval services.RetrievalService) *AdminHandler {
	return &AdminHandler{sweeper: sweeper, retrieval: retrieval}
}

func (h *AdminHandler) Sweep(c *gin.Context) {
	rep, err := h.sweeper.RunOnce(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *AdminHandler) Backfill(c *gin.Context) {
	rep, err := h.retrieval.Backfill(c.Request.Context(), queryInt(c, "limit", 500, 10000))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}
