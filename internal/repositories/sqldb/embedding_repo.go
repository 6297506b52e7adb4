package sqldb

import (
	"context"
	"errors"

	"github.com/yoockh/yoomemory/internal/models"
	"github.com/yoockh/yoomemory/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EmbeddingRepository interface {
	// Save inserts or replaces the embedding for a message.
	Save(ctx context.Context, e *models.Embedding) error
	GetByMessageID(ctx context.Context, messageID string) (*models.Embedding, error)
	// ListByUser returns the user's embeddings with Message populated.
	ListByUser(ctx context.Context, userID string) ([]models.Embedding, error)
}

type embeddingRepo struct {
	db *gorm.DB
}

func NewEmbeddingRepo(db *gorm.DB) EmbeddingRepository {
	return &embeddingRepo{db: db}
}

func (r *embeddingRepo) Save(ctx context.Context, e *models.Embedding) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"vector", "model", "dimensions", "created_at"}),
		}).
		Omit("Message").
		Create(e).Error
}

func (r *embeddingRepo) GetByMessageID(ctx context.Context, messageID string) (*models.Embedding, error) {
	var e models.Embedding
	err := r.db.WithContext(ctx).Where("message_id = ?", messageID).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *embeddingRepo) ListByUser(ctx context.Context, userID string) ([]models.Embedding, error) {
	db := r.db.WithContext(ctx)
	var rows []models.Embedding
	err := db.
		Preload("Message").
		Where("message_id IN (?)", db.Model(&models.Message{}).Select("id").Where("user_id = ?", userID)).
		Find(&rows).Error
	return rows, err
}
