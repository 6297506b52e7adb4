package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/yoomemory/internal/logger"
	"github.com/yoockh/yoomemory/internal/models"
	"github.com/yoockh/yoomemory/internal/repositories/sqldb"
	"github.com/yoockh/yoomemory/internal/utils"
	"gorm.io/datatypes"
)

// AuditMirror receives a copy of every committed audit entry. It is best
// effort; failures are logged and never reach the caller.
type AuditMirror interface {
	Mirror(ctx context.Context, entry models.AuditLog) error
}

type AuditService interface {
	// Build prepares an entry without writing it, for callers that commit it
	// inside their own transaction.
	Build(userID, action, resourceType, resourceID string, details map[string]any) *models.AuditLog
	Record(ctx context.Context, userID, action, resourceType, resourceID string, details map[string]any) error
	// Committed forwards an entry that was written elsewhere to the mirror.
	Committed(ctx context.Context, entry *models.AuditLog)
	List(ctx context.Context, userID string, limit int) ([]models.AuditLog, error)
}

type auditService struct {
	audit  sqldb.AuditRepository
	mirror AuditMirror
	log    *logrus.Logger
}

// NewAuditService accepts a nil mirror.
func NewAuditService(audit sqldb.AuditRepository, mirror AuditMirror, log *logrus.Logger) AuditService {
	if log == nil {
		log = logger.Discard()
	}
	return &auditService{audit: audit, mirror: mirror, log: log}
}

func (s *auditService) Build(userID, action, resourceType, resourceID string, details map[string]any) *models.AuditLog {
	entry := &models.AuditLog{
		ID:           uuid.NewString(),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Timestamp:    time.Now().UTC(),
	}
	if userID != "" {
		uid := userID
		entry.UserID = &uid
	}
	if len(details) > 0 {
		if b, err := json.Marshal(details); err == nil {
			entry.Details = datatypes.JSON(b)
		}
	}
	return entry
}

func (s *auditService) Record(ctx context.Context, userID, action, resourceType, resourceID string, details map[string]any) error {
	const op = "AuditService.Record"

	if action == "" {
		return utils.E(utils.CodeInvalidArgument, op, "action is required", nil)
	}
	entry := s.Build(userID, action, resourceType, resourceID, details)
	if err := s.audit.Insert(ctx, entry); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to write audit entry", err)
	}
	s.Committed(ctx, entry)
	return nil
}

func (s *auditService) Committed(ctx context.Context, entry *models.AuditLog) {
	if s.mirror == nil || entry == nil {
		return
	}
	if err := s.mirror.Mirror(ctx, *entry); err != nil {
		s.log.WithFields(logrus.Fields{
			"component": "audit",
			"action":    entry.Action,
			"audit_id":  entry.ID,
		}).WithError(err).Warn("audit mirror write failed")
	}
}

func (s *auditService) List(ctx context.Context, userID string, limit int) ([]models.AuditLog, error) {
	const op = "AuditService.List"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	rows, err := s.audit.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list audit entries", err)
	}
	return rows, nil
}
