package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/yoomemory/internal/models"
	"github.com/yoockh/yoomemory/internal/services"
)

type ConsentHandler struct {
	svc services.ConsentService
}

func NewConsentHandler(svc services.ConsentService) *ConsentHandler {
	return &ConsentHandler{svc: svc}
}

type GrantConsentRequest struct {
	ConsentType   models.ConsentType `json:"consent_type" binding:"required"`
	ExpiresAt     *time.Time         `json:"expires_at,omitempty"`
	PolicyVersion string             `json:"policy_version,omitempty"`
	Metadata      map[string]any     `json:"metadata,omitempty"`
}

func (h *ConsentHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	rows, err := h.svc.List(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"consents": rows})
}

func (h *ConsentHandler) Grant(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req GrantConsentRequest
	if !bindJSON(c, "ConsentHandler.Grant", &req) {
		return
	}

	rec, err := h.svc.Grant(c.Request.Context(), services.GrantInput{
		UserID:        userID,
		Type:          req.ConsentType,
		ExpiresAt:     req.ExpiresAt,
		PolicyVersion: req.PolicyVersion,
		Metadata:      req.Metadata,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *ConsentHandler) Revoke(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	t := models.ConsentType(c.Param("consent_type"))
	if err := h.svc.Revoke(c.Request.Context(), userID, t); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Check reports whether a consent type is currently in force.
func (h *ConsentHandler) Check(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	t := models.ConsentType(c.Param("consent_type"))
	c.JSON(http.StatusOK, gin.H{
		"consent_type": t,
		"granted":      h.svc.HasConsent(c.Request.Context(), userID, t),
	})
}
