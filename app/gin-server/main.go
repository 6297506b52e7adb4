package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/yoomemory/config"
	"github.com/yoockh/yoomemory/internal/api/handlers"
	"github.com/yoockh/yoomemory/internal/api/middleware"
	"github.com/yoockh/yoomemory/internal/api/routes"
	"github.com/yoockh/yoomemory/internal/bootstrap"
	"github.com/yoockh/yoomemory/internal/logger"
)

func main() {
	s, err := config.Load()
	if err != nil {
		logger.New("").WithError(err).Fatal("config load failed")
	}
	log := logger.New(s.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, s, log)
	if err != nil {
		log.WithError(err).Fatal("startup failed")
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.WithError(err).Warn("shutdown close failed")
		}
	}()
	log.WithField("db_driver", s.DBDriver).Info("storage ready")

	if app.Pool != nil {
		if err := app.Pool.Start(ctx); err != nil {
			log.WithError(err).Fatal("embedding worker pool failed to start")
		}
		log.Info("embedding worker pool started")
	}
	go app.Sweeper.Run(ctx)

	if s.LogLevel != "debug" && s.LogLevel != "trace" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))

	routes.RegisterRoutes(r, routes.Deps{
		Auth: middleware.JWTConfig{
			Secret:   s.JWTSecret,
			Issuer:   s.JWTIssuer,
			Audience: s.JWTAudience,
		},
		Session:      handlers.NewSessionHandler(app.Sessions, app.Profiles),
		Profile:      handlers.NewProfileHandler(app.Profiles, app.Consent),
		Conversation: handlers.NewConversationHandler(app.Conversations),
		Memory:       handlers.NewMemoryHandler(app.Retrieval, app.Context, app.Personalization),
		Consent:      handlers.NewConsentHandler(app.Consent),
		DataRights:   handlers.NewDataRightsHandler(app.DataRights, app.Audit),
		Chat:         handlers.NewChatHandler(app.Chat),
		Admin:        handlers.NewAdminHandler(app.Sweeper, app.Retrieval),
	})

	srv := &http.Server{
		Addr:              ":" + s.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("port", s.Port).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown failed")
	}
}
