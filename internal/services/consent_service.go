package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/yoomemory/internal/logger"
	"github.com/yoockh/yoomemory/internal/models"
	"github.com/yoockh/yoomemory/internal/repositories/sqldb"
	"github.com/yoockh/yoomemory/internal/utils"
	"gorm.io/datatypes"
)

const DefaultPolicyVersion = "2024-01"

type GrantInput struct {
	UserID        string
	Type          models.ConsentType
	ExpiresAt     *time.Time
	PolicyVersion string
	Metadata      map[string]any
}

type ConsentService interface {
	Grant(ctx context.Context, in GrantInput) (*models.ConsentRecord, error)
	Revoke(ctx context.Context, userID string, t models.ConsentType) error
	// HasConsent is the single gate for storage, retrieval, personalization
	// and sharing. Expiry is evaluated at call time. Lookup failures count
	// as "no consent".
	HasConsent(ctx context.Context, userID string, t models.ConsentType) bool
	List(ctx context.Context, userID string) ([]models.ConsentRecord, error)
	// RevokeExpired normalizes granted records past their expiry.
	RevokeExpired(ctx context.Context) (int, error)
}

type consentService struct {
	consents sqldb.ConsentRepository
	audit    AuditService
	log      *logrus.Logger
}

func NewConsentService(consents sqldb.ConsentRepository, audit AuditService, log *logrus.Logger) ConsentService {
	if log == nil {
		log = logger.Discard()
	}
	return &consentService{consents: consents, audit: audit, log: log}
}

func (s *consentService) Grant(ctx context.Context, in GrantInput) (*models.ConsentRecord, error) {
	const op = "ConsentService.Grant"

	if in.UserID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	if !in.Type.Valid() {
		return nil, utils.E(utils.CodeInvalidArgument, op, "unknown consent type", nil)
	}
	now := time.Now().UTC()
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return nil, utils.E(utils.CodeInvalidArgument, op, "expires_at must be in the future", nil)
	}
	if in.PolicyVersion == "" {
		in.PolicyVersion = DefaultPolicyVersion
	}

	rec := &models.ConsentRecord{
		ID:            uuid.NewString(),
		UserID:        in.UserID,
		ConsentType:   in.Type,
		Status:        models.ConsentGranted,
		GrantedAt:     &now,
		PolicyVersion: in.PolicyVersion,
		CreatedAt:     now,
	}
	if in.ExpiresAt != nil {
		exp := in.ExpiresAt.UTC()
		rec.ExpiresAt = &exp
	}
	if len(in.Metadata) > 0 {
		b, err := json.Marshal(in.Metadata)
		if err != nil {
			return nil, utils.E(utils.CodeInvalidArgument, op, "metadata is not JSON-encodable", err)
		}
		rec.Metadata = datatypes.JSON(b)
	}

	entry := s.audit.Build(in.UserID, models.AuditConsentGranted, "consent_record", rec.ID, map[string]any{
		"consent_type":   in.Type,
		"policy_version": in.PolicyVersion,
		"expires_at":     rec.ExpiresAt,
	})
	if err := s.consents.ReplaceActive(ctx, rec, entry); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to grant consent", err)
	}
	s.audit.Committed(ctx, entry)

	s.log.WithFields(logrus.Fields{
		"component":    "consent",
		"user_id":      in.UserID,
		"consent_type": in.Type,
	}).Info("consent granted")
	return rec, nil
}

func (s *consentService) Revoke(ctx context.Context, userID string, t models.ConsentType) error {
	const op = "ConsentService.Revoke"

	if userID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	if !t.Valid() {
		return utils.E(utils.CodeInvalidArgument, op, "unknown consent type", nil)
	}

	entry := s.audit.Build(userID, models.AuditConsentRevoked, "consent_record", "", map[string]any{
		"consent_type": t,
	})
	n, err := s.consents.RevokeActive(ctx, userID, t, time.Now().UTC(), entry)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to revoke consent", err)
	}
	s.audit.Committed(ctx, entry)

	s.log.WithFields(logrus.Fields{
		"component":    "consent",
		"user_id":      userID,
		"consent_type": t,
		"revoked":      n,
	}).Info("consent revoked")
	return nil
}

func (s *consentService) HasConsent(ctx context.Context, userID string, t models.ConsentType) bool {
	if userID == "" || !t.Valid() {
		return false
	}
	rec, err := s.consents.ActiveFor(ctx, userID, t)
	if err != nil {
		if !errors.Is(err, utils.ErrNotFound) {
			s.log.WithFields(logrus.Fields{
				"component":    "consent",
				"user_id":      userID,
				"consent_type": t,
			}).WithError(err).Warn("consent lookup failed, treating as not granted")
		}
		return false
	}
	return rec.IsActive(time.Now().UTC())
}

func (s *consentService) List(ctx context.Context, userID string) ([]models.ConsentRecord, error) {
	const op = "ConsentService.List"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	rows, err := s.consents.ListByUser(ctx, userID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list consents", err)
	}
	return rows, nil
}

func (s *consentService) RevokeExpired(ctx context.Context) (int, error) {
	const op = "ConsentService.RevokeExpired"

	expired, err := s.consents.RevokeExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, utils.E(utils.CodeInternal, op, "failed to revoke expired consents", err)
	}
	for _, rec := range expired {
		if err := s.audit.Record(ctx, rec.UserID, models.AuditConsentExpired, "consent_record", rec.ID, map[string]any{
			"consent_type": rec.ConsentType,
			"expires_at":   rec.ExpiresAt,
		}); err != nil {
			s.log.WithField("consent_id", rec.ID).WithError(err).Warn("failed to audit consent expiry")
		}
	}
	if len(expired) > 0 {
		s.log.WithFields(logrus.Fields{"component": "consent", "expired": len(expired)}).Info("expired consents revoked")
	}
	return len(expired), nil
}
