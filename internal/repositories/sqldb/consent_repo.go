package sqldb

import (
	"context"
	"time"

	"github.com/yoockh/yoomemory/internal/models"
	"github.com/yoockh/yoomemory/internal/utils"
	"gorm.io/gorm"
)

type ConsentRepository interface {
	// ReplaceActive revokes any granted record of the same (user, type),
	// inserts rec and writes entry, all in one transaction.
	ReplaceActive(ctx context.Context, rec *models.ConsentRecord, entry *models.AuditLog) error
	// RevokeActive revokes the granted record(s) of (user, type) and writes
	// entry in the same transaction. It returns the number revoked.
	RevokeActive(ctx context.Context, userID string, t models.ConsentType, at time.Time, entry *models.AuditLog) (int64, error)
	// ActiveFor returns the newest granted record, expired or not.
	ActiveFor(ctx context.Context, userID string, t models.ConsentType) (*models.ConsentRecord, error)
	ListByUser(ctx context.Context, userID string) ([]models.ConsentRecord, error)
	// RevokeExpired flips granted records whose expiry has passed and
	// returns them as they were before the update.
	RevokeExpired(ctx context.Context, now time.Time) ([]models.ConsentRecord, error)
}

type consentRepo struct {
	db *gorm.DB
}

func NewConsentRepo(db *gorm.DB) ConsentRepository {
	return &consentRepo{db: db}
}

func revokeGranted(tx *gorm.DB, userID string, t models.ConsentType, at time.Time) *gorm.DB {
	return tx.Model(&models.ConsentRecord{}).
		Where("user_id = ? AND consent_type = ? AND status = ?", userID, t, models.ConsentGranted).
		Updates(map[string]any{
			"status":     models.ConsentRevoked,
			"revoked_at": at.UTC(),
		})
}

func (r *consentRepo) ReplaceActive(ctx context.Context, rec *models.ConsentRecord, entry *models.AuditLog) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if rec.Status == models.ConsentGranted {
			at := rec.CreatedAt
			if rec.GrantedAt != nil {
				at = *rec.GrantedAt
			}
			if err := revokeGranted(tx, rec.UserID, rec.ConsentType, at).Error; err != nil {
				return err
			}
		}
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		if entry == nil {
			return nil
		}
		return tx.Create(entry).Error
	})
}

func (r *consentRepo) RevokeActive(ctx context.Context, userID string, t models.ConsentType, at time.Time, entry *models.AuditLog) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := revokeGranted(tx, userID, t, at)
		if res.Error != nil {
			return res.Error
		}
		n = res.RowsAffected
		if entry == nil {
			return nil
		}
		return tx.Create(entry).Error
	})
	return n, err
}

func (r *consentRepo) ActiveFor(ctx context.Context, userID string, t models.ConsentType) (*models.ConsentRecord, error) {
	var rows []models.ConsentRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND consent_type = ? AND status = ?", userID, t, models.ConsentGranted).
		Order("created_at DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, utils.ErrNotFound
	}
	return &rows[0], nil
}

func (r *consentRepo) ListByUser(ctx context.Context, userID string) ([]models.ConsentRecord, error) {
	var rows []models.ConsentRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *consentRepo) RevokeExpired(ctx context.Context, now time.Time) ([]models.ConsentRecord, error) {
	var rows []models.ConsentRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", models.ConsentGranted, now.UTC()).
			Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		ids := make([]string, 0, len(rows))
		for _, rec := range rows {
			ids = append(ids, rec.ID)
		}
		return tx.Model(&models.ConsentRecord{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":     models.ConsentRevoked,
				"revoked_at": now.UTC(),
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}
