package sqldb

import (
	"context"

	"github.com/yoockh/yoomemory/internal/models"
	"gorm.io/gorm"
)

type AuditRepository interface {
	Insert(ctx context.Context, entry *models.AuditLog) error
	// ListByUser returns newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]models.AuditLog, error)
	CountByUser(ctx context.Context, userID string) (int64, error)
}

type auditRepo struct {
	db *gorm.DB
}

func NewAuditRepo(db *gorm.DB) AuditRepository {
	return &auditRepo{db: db}
}

func (r *auditRepo) Insert(ctx context.Context, entry *models.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *auditRepo) ListByUser(ctx context.Context, userID string, limit int) ([]models.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.AuditLog
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *auditRepo) CountByUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.AuditLog{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}
