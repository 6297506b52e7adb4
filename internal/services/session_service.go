package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/yoomemory/internal/logger"
	"github.com/yoockh/yoomemory/internal/models"
	"github.com/yoockh/yoomemory/internal/repositories/sqldb"
	"github.com/yoockh/yoomemory/internal/utils"
)

const DefaultSessionInactivity = 30 * time.Minute

type SessionService interface {
	// GetOrCreateActive returns the user's open session, ending it first
	// and starting a fresh one when it has been idle past the inactivity
	// window.
	GetOrCreateActive(ctx context.Context, userID string) (*models.Session, error)
	Start(ctx context.Context, userID string) (*models.Session, error)
	Get(ctx context.Context, sessionID string) (*models.Session, error)
	End(ctx context.Context, sessionID string) (*models.Session, error)
	ListByUser(ctx context.Context, userID string) ([]models.Session, error)
	// EndIdle ends every active session idle past the inactivity window.
	EndIdle(ctx context.Context) (int, error)
}

type sessionService struct {
	sessions   sqldb.SessionRepository
	inactivity time.Duration
	log        *logrus.Logger
}

func NewSessionService(sessions sqldb.SessionRepository, inactivity time.Duration, log *logrus.Logger) SessionService {
	if inactivity <= 0 {
		inactivity = DefaultSessionInactivity
	}
	if log == nil {
		log = logger.Discard()
	}
	return &sessionService{sessions: sessions, inactivity: inactivity, log: log}
}

func (s *sessionService) GetOrCreateActive(ctx context.Context, userID string) (*models.Session, error) {
	const op = "SessionService.GetOrCreateActive"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	cur, err := s.sessions.ActiveForUser(ctx, userID)
	switch {
	case err == nil:
		if time.Since(cur.LastActivity) <= s.inactivity {
			return cur, nil
		}
		if err := s.sessions.End(ctx, cur.ID, time.Now().UTC()); err != nil {
			return nil, utils.E(utils.CodeInternal, op, "failed to end stale session", err)
		}
		s.log.WithFields(logrus.Fields{
			"component":  "session",
			"user_id":    userID,
			"session_id": cur.ID,
		}).Info("stale session ended")
	case !errors.Is(err, utils.ErrNotFound):
		return nil, utils.E(utils.CodeInternal, op, "failed to look up active session", err)
	}
	return s.Start(ctx, userID)
}

func (s *sessionService) Start(ctx context.Context, userID string) (*models.Session, error) {
	const op = "SessionService.Start"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	now := time.Now().UTC()
	session := &models.Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		Status:       models.SessionActive,
		StartedAt:    now,
		LastActivity: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create session", err)
	}
	return session, nil
}

func (s *sessionService) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	const op = "SessionService.Get"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}

	out, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get session", err)
	}
	return out, nil
}

func (s *sessionService) End(ctx context.Context, sessionID string) (*models.Session, error) {
	const op = "SessionService.End"

	ss, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if ss.Status == models.SessionEnded {
		return ss, nil
	}

	now := time.Now().UTC()
	if err := s.sessions.End(ctx, sessionID, now); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to end session", err)
	}
	ss.Status = models.SessionEnded
	ss.EndedAt = &now
	return ss, nil
}

func (s *sessionService) ListByUser(ctx context.Context, userID string) ([]models.Session, error) {
	const op = "SessionService.ListByUser"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	rows, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list sessions", err)
	}
	return rows, nil
}

func (s *sessionService) EndIdle(ctx context.Context) (int, error) {
	const op = "SessionService.EndIdle"

	now := time.Now().UTC()
	idle, err := s.sessions.ListIdleActive(ctx, now.Add(-s.inactivity))
	if err != nil {
		return 0, utils.E(utils.CodeInternal, op, "failed to list idle sessions", err)
	}
	ended := 0
	for _, ss := range idle {
		if err := s.sessions.End(ctx, ss.ID, now); err != nil {
			s.log.WithField("session_id", ss.ID).WithError(err).Warn("failed to end idle session")
			continue
		}
		ended++
	}
	return ended, nil
}
