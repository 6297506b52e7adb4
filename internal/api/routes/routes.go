package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/yoockh/yoomemory/internal/api/handlers"
	"github.com/yoockh/yoomemory/internal/api/middleware"
)

type Deps struct {
	Auth         middleware.JWTConfig
	Session      *handlers.SessionHandler
	Profile      *handlers.ProfileHandler
	Conversation *handlers.ConversationHandler
	Memory       *handlers.MemoryHandler
	Consent      *handlers.ConsentHandler
	DataRights   *handlers.DataRightsHandler
	Chat         *handlers.ChatHandler
	Admin        *handlers.AdminHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	auth := r.Group("/")
	auth.Use(middleware.JWTAuth(d.Auth))

	auth.POST("/session/start", d.Session.Start)
	auth.GET("/sessions", d.Session.List)
	auth.GET("/session/:session_id", d.Session.Get)
	auth.POST("/session/:session_id/end", d.Session.End)
	auth.GET("/session/:session_id/messages", d.Conversation.History)

	auth.GET("/profile/me", d.Profile.Me)
	auth.PUT("/profile/update", d.Profile.Update)

	auth.POST("/messages", d.Conversation.Store)
	auth.GET("/messages", d.Conversation.History)

	auth.GET("/memory/search", d.Memory.Search)
	auth.POST("/memory/context", d.Memory.Context)
	auth.GET("/personalization/style", d.Memory.Style)
	auth.POST("/personalization/adapt", d.Memory.Adapt)
	auth.GET("/personalization/engagement", d.Memory.Engagement)

	auth.GET("/consents", d.Consent.List)
	auth.POST("/consents", d.Consent.Grant)
	auth.GET("/consents/:consent_type", d.Consent.Check)
	auth.DELETE("/consents/:consent_type", d.Consent.Revoke)

	auth.GET("/me/export", d.DataRights.Export)
	auth.GET("/me/audit", d.DataRights.Audit)
	auth.POST("/me/anonymize", d.DataRights.Anonymize)
	auth.DELETE("/me", d.DataRights.Delete)

	auth.POST("/chat/turn", d.Chat.Turn)

	admin := auth.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	admin.POST("/sweep", d.Admin.Sweep)
	admin.POST("/backfill", d.Admin.Backfill)
}
