package sqldb

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/yoomemory/internal/models"
	"github.com/yoockh/yoomemory/internal/utils"
	"gorm.io/gorm"
)

type SessionRepository interface {
	Create(ctx context.Context, s *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	// ActiveForUser returns the most recently active open session.
	ActiveForUser(ctx context.Context, userID string) (*models.Session, error)
	End(ctx context.Context, id string, endedAt time.Time) error
	ListByUser(ctx context.Context, userID string) ([]models.Session, error)
	ListIdleActive(ctx context.Context, before time.Time) ([]models.Session, error)
}

type sessionRepo struct {
	db *gorm.DB
}

func NewSessionRepo(db *gorm.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) Create(ctx context.Context, s *models.Session) error {
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now().UTC()
	}
	if s.LastActivity.IsZero() {
		s.LastActivity = s.StartedAt
	}
	if s.Status == "" {
		s.Status = models.SessionActive
	}
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *sessionRepo) GetByID(ctx context.Context, id string) (*models.Session, error) {
	var s models.Session
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepo) ActiveForUser(ctx context.Context, userID string) (*models.Session, error) {
	var rows []models.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.SessionActive).
		Order("last_activity DESC").
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

func (r *sessionRepo) End(ctx context.Context, id string, endedAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ? AND status = ?", id, models.SessionActive).
		Updates(map[string]any{
			"status":   models.SessionEnded,
			"ended_at": endedAt.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// either unknown or already ended
		var n int64
		if err := r.db.WithContext(ctx).Model(&models.Session{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return utils.ErrNotFound
		}
	}
	return nil
}

func (r *sessionRepo) ListByUser(ctx context.Context, userID string) ([]models.Session, error) {
	var rows []models.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("started_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *sessionRepo) ListIdleActive(ctx context.Context, before time.Time) ([]models.Session, error) {
	var rows []models.Session
	err := r.db.WithContext(ctx).
		Where("status = ? AND last_activity < ?", models.SessionActive, before.UTC()).
		Find(&rows).Error
	return rows, err
}
