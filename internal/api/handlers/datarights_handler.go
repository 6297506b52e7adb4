package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/yoomemory/internal/services"
)

type DataRightsHandler struct {
	svc   services.DataRightsService
	audit services.AuditService
}

func NewDataRightsHandler(svc services.DataRightsService, audit services.AuditService) *DataRightsHandler {
	return &DataRightsHandler{svc: svc, audit: audit}
}

func (h *DataRightsHandler) Export(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	out, err := h.svc.ExportUserData(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *DataRightsHandler) Delete(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	counts, err := h.svc.DeleteUserData(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": counts, "total": counts.Total()})
}

func (h *DataRightsHandler) Anonymize(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	counts, err := h.svc.AnonymizeUserData(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"anonymized": counts})
}

func (h *DataRightsHandler) Audit(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	rows, err := h.audit.List(c.Request.Context(), userID, queryInt(c, "limit", 100, services.ExportAuditLimit))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audit_logs": rows})
}
