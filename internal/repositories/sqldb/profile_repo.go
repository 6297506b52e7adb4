package sqldb

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/yoomemory/internal/models"
	"github.com/yoockh/yoomemory/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProfileRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.UserProfile, error)
	// CreateIfAbsent inserts p unless a row for the user exists. It reports
	// whether a row was written.
	CreateIfAbsent(ctx context.Context, p *models.UserProfile) (bool, error)
	Upsert(ctx context.Context, p *models.UserProfile) error
	Touch(ctx context.Context, userID string, at time.Time) error
	ListWithRetention(ctx context.Context) ([]models.UserProfile, error)
}

type profileRepo struct {
	db *gorm.DB
}

func NewProfileRepo(db *gorm.DB) ProfileRepository {
	return &profileRepo{db: db}
}

func (r *profileRepo) GetByUserID(ctx context.Context, userID string) (*models.UserProfile, error) {
	var p models.UserProfile
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *profileRepo) CreateIfAbsent(ctx context.Context, p *models.UserProfile) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(p)
	return res.RowsAffected > 0, res.Error
}

func (r *profileRepo) Upsert(ctx context.Context, p *models.UserProfile) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"nickname", "conversation_style", "topics_of_interest", "memory_enabled",
				"data_retention_days", "share_with_companion", "last_active_at",
			}),
		}).
		Create(p).Error
}

func (r *profileRepo) Touch(ctx context.Context, userID string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.UserProfile{}).
		Where("user_id = ?", userID).
		Update("last_active_at", at.UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrNotFound
	}
	return nil
}

func (r *profileRepo) ListWithRetention(ctx context.Context) ([]models.UserProfile, error) {
	var rows []models.UserProfile
	err := r.db.WithContext(ctx).
		Where("data_retention_days > 0").
		Order("user_id").
		Find(&rows).Error
	return rows, err
}
