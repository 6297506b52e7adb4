package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/yoomemory/internal/analysis/emotion"
	"github.com/yoockh/yoomemory/internal/logger"
	"github.com/yoockh/yoomemory/internal/models"
	"github.com/yoockh/yoomemory/internal/repositories/sqldb"
	"github.com/yoockh/yoomemory/internal/tokens"
	"github.com/yoockh/yoomemory/internal/utils"
	"gorm.io/datatypes"
)

// Indexer hands a stored message to background embedding. Enqueue must
// not block on the embedding itself.
type Indexer interface {
	Enqueue(ctx context.Context, msg models.Message)
}

type StoreMessageInput struct {
	UserID string
	// SessionID is optional; the user's active session is used (or
	// started) when empty.
	SessionID   string
	Role        models.Role
	Content     string
	Emotion     *string
	SafetyCheck map[string]any
}

type ConversationService interface {
	StoreMessage(ctx context.Context, in StoreMessageInput) (*models.Message, error)
	// GetConversationHistory returns up to limit messages in chronological
	// order: the given session's, or the user's most recent when sessionID
	// is empty.
	GetConversationHistory(ctx context.Context, userID, sessionID string, limit int) ([]models.Message, error)
	// RetentionSweep deletes messages older than each profile's retention
	// window. Profiles themselves are kept.
	RetentionSweep(ctx context.Context) (int, error)
}

type conversationService struct {
	messages  sqldb.MessageRepository
	profiles  sqldb.ProfileRepository
	profileSv ProfileService
	sessions  SessionService
	retrieval RetrievalService
	audit     AuditService
	counter   tokens.Counter
	indexer   Indexer
	log       *logrus.Logger
}

// NewConversationService accepts a nil indexer, in which case messages are
// only picked up by Backfill.
func NewConversationService(
	messages sqldb.MessageRepository,
	profiles sqldb.ProfileRepository,
	profileSv ProfileService,
	sessions SessionService,
	retrieval RetrievalService,
	audit AuditService,
	counter tokens.Counter,
	indexer Indexer,
	log *logrus.Logger,
) ConversationService {
	if counter == nil {
		counter = tokens.Heuristic{}
	}
	if log == nil {
		log = logger.Discard()
	}
	return &conversationService{
		messages:  messages,
		profiles:  profiles,
		profileSv: profileSv,
		sessions:  sessions,
		retrieval: retrieval,
		audit:     audit,
		counter:   counter,
		indexer:   indexer,
		log:       log,
	}
}

func (s *conversationService) StoreMessage(ctx context.Context, in StoreMessageInput) (*models.Message, error) {
	const op = "ConversationService.StoreMessage"

	content := strings.TrimSpace(in.Content)
	if in.UserID == "" || content == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id and content are required", nil)
	}
	if !in.Role.Valid() {
		return nil, utils.E(utils.CodeInvalidArgument, op, "role must be user or agent", nil)
	}

	if _, err := s.profileSv.GetOrCreate(ctx, in.UserID); err != nil {
		return nil, err
	}

	sessionID := in.SessionID
	if sessionID == "" {
		ss, err := s.sessions.GetOrCreateActive(ctx, in.UserID)
		if err != nil {
			return nil, err
		}
		sessionID = ss.ID
	}

	msg := &models.Message{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		UserID:     in.UserID,
		Role:       in.Role,
		Content:    content,
		Timestamp:  time.Now().UTC(),
		TokenCount: s.counter.Count(content),
		Emotion:    in.Emotion,
	}
	if msg.Emotion == nil && in.Role == models.RoleUser {
		msg.Emotion = emotion.Tag(content)
	}
	if len(in.SafetyCheck) > 0 {
		b, err := json.Marshal(in.SafetyCheck)
		if err != nil {
			return nil, utils.E(utils.CodeInvalidArgument, op, "safety_check is not JSON-encodable", err)
		}
		msg.SafetyCheck = datatypes.JSON(b)
	}

	if err := s.messages.Append(ctx, msg); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "session not found for user", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to store message", err)
	}
	if err := s.profiles.Touch(ctx, in.UserID, msg.Timestamp); err != nil {
		s.log.WithField("user_id", in.UserID).WithError(err).Debug("profile touch failed")
	}

	if s.indexer != nil {
		s.indexer.Enqueue(ctx, *msg)
	}
	return msg, nil
}

func (s *conversationService) GetConversationHistory(ctx context.Context, userID, sessionID string, limit int) ([]models.Message, error) {
	const op = "ConversationService.GetConversationHistory"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	var (
		rows []models.Message
		err  error
	)
	if sessionID != "" {
		rows, err = s.messages.ListBySession(ctx, userID, sessionID, limit)
	} else {
		rows, err = s.messages.ListRecentByUser(ctx, userID, "", limit)
	}
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list messages", err)
	}
	reverse(rows)
	return rows, nil
}

func (s *conversationService) RetentionSweep(ctx context.Context) (int, error) {
	const op = "ConversationService.RetentionSweep"

	profiles, err := s.profiles.ListWithRetention(ctx)
	if err != nil {
		return 0, utils.E(utils.CodeInternal, op, "failed to list profiles", err)
	}

	now := time.Now().UTC()
	total := 0
	for _, p := range profiles {
		cutoff := now.Add(-time.Duration(p.RetentionDays) * 24 * time.Hour)
		ids, err := s.messages.DeleteOlderThan(ctx, p.UserID, cutoff)
		if err != nil {
			s.log.WithField("user_id", p.UserID).WithError(err).Warn("retention sweep failed for user")
			continue
		}
		if len(ids) == 0 {
			continue
		}
		total += len(ids)
		if err := s.retrieval.Remove(ctx, p.UserID, ids...); err != nil {
			s.log.WithField("user_id", p.UserID).WithError(err).Warn("failed to drop swept messages from index")
		}
		if err := s.audit.Record(ctx, p.UserID, models.AuditRetentionSweep, "messages", "", map[string]any{
			"deleted":        len(ids),
			"retention_days": p.RetentionDays,
			"cutoff":         cutoff,
		}); err != nil {
			s.log.WithField("user_id", p.UserID).WithError(err).Warn("failed to audit retention sweep")
		}
	}

	s.log.WithFields(logrus.Fields{"component": "retention", "deleted": total, "profiles": len(profiles)}).Info("retention sweep finished")
	return total, nil
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
