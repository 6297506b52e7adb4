package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/yoomemory/internal/models"
	"github.com/yoockh/yoomemory/internal/services"
)

var profileConsentTypes = []models.ConsentType{
	models.ConsentMemoryStorage,
	models.ConsentPersonalization,
	models.ConsentDataSharing,
	models.ConsentAnalytics,
	models.ConsentRetention,
}

type ProfileHandler struct {
	profiles services.ProfileService
	consent  services.ConsentService
}

func NewProfileHandler(profiles services.ProfileService, consent services.ConsentService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, consent: consent}
}

type profileView struct {
	Profile  *models.UserProfile         `json:"profile"`
	Consents map[models.ConsentType]bool `json:"consents"`
}

func (h *ProfileHandler) view(c *gin.Context, p *models.UserProfile) profileView {
	v := profileView{Profile: p, Consents: make(map[models.ConsentType]bool, len(profileConsentTypes))}
	for _, t := range profileConsentTypes {
		v.Consents[t] = h.consent.HasConsent(c.Request.Context(), p.UserID, t)
	}
	return v
}

// Me returns the caller's profile (created on first contact) with the
// current state of every consent type.
func (h *ProfileHandler) Me(c *gin.Context) {
	uid, ok := requireUserID(c)
	if !ok {
		return
	}
	p, err := h.profiles.GetOrCreate(c.Request.Context(), uid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(c, p))
}

func (h *ProfileHandler) Update(c *gin.Context) {
	uid, ok := requireUserID(c)
	if !ok {
		return
	}
	var in services.ProfileUpdate
	if !bindJSON(c, "ProfileHandler.Update", &in) {
		return
	}
	p, err := h.profiles.Update(c.Request.Context(), uid, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(c, p))
}
