package sqldb

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/yoomemory/internal/models"
	"github.com/yoockh/yoomemory/internal/utils"
	"gorm.io/gorm"
)

type MessageRepository interface {
	// Append writes the message and bumps its session counters in one
	// transaction. A session that does not exist, or belongs to another
	// user, yields utils.ErrNotFound and nothing is written.
	Append(ctx context.Context, m *models.Message) error
	GetByID(ctx context.Context, id string) (*models.Message, error)
	// ListBySession returns newest first.
	ListBySession(ctx context.Context, userID, sessionID string, limit int) ([]models.Message, error)
	// ListRecentByUser returns newest first; an empty role means any role.
	ListRecentByUser(ctx context.Context, userID string, role models.Role, limit int) ([]models.Message, error)
	ListByUser(ctx context.Context, userID string) ([]models.Message, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Message, error)
	// ListMissingEmbedding returns the oldest messages without an embedding
	// whose owner has memory on at now: an unexpired memory_storage grant
	// and memory_enabled not switched off. Redacted rows are never listed.
	ListMissingEmbedding(ctx context.Context, now time.Time, limit int) ([]models.Message, error)
	// DeleteOlderThan removes a user's messages (and their embeddings)
	// with timestamp before cutoff, returning the removed ids.
	DeleteOlderThan(ctx context.Context, userID string, cutoff time.Time) ([]string, error)
}

type messageRepo struct {
	db *gorm.DB
}

func NewMessageRepo(db *gorm.DB) MessageRepository {
	return &messageRepo{db: db}
}

func (r *messageRepo) Append(ctx context.Context, m *models.Message) error {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Session{}).
			Where("id = ? AND user_id = ?", m.SessionID, m.UserID).
			Updates(map[string]any{
				"message_count": gorm.Expr("message_count + 1"),
				"last_activity": m.Timestamp.UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return utils.ErrNotFound
		}
		return tx.Create(m).Error
	})
}

func (r *messageRepo) GetByID(ctx context.Context, id string) (*models.Message, error) {
	var m models.Message
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *messageRepo) ListBySession(ctx context.Context, userID, sessionID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []models.Message
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *messageRepo) ListRecentByUser(ctx context.Context, userID string, role models.Role, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if role != "" {
		q = q.Where("role = ?", role)
	}

	var rows []models.Message
	err := q.Order("timestamp DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *messageRepo) ListByUser(ctx context.Context, userID string) ([]models.Message, error) {
	var rows []models.Message
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp ASC").
		Find(&rows).Error
	return rows, err
}

func (r *messageRepo) ListByIDs(ctx context.Context, ids []string) ([]models.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.Message
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error
	return rows, err
}

func (r *messageRepo) ListMissingEmbedding(ctx context.Context, now time.Time, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	granted := r.db.Model(&models.ConsentRecord{}).
		Select("1").
		Where("consent_records.user_id = messages.user_id").
		Where("consent_records.consent_type = ? AND consent_records.status = ?", models.ConsentMemoryStorage, models.ConsentGranted).
		Where("(consent_records.expires_at IS NULL OR consent_records.expires_at > ?)", now.UTC())
	disabled := r.db.Model(&models.UserProfile{}).
		Select("1").
		Where("user_profiles.user_id = messages.user_id AND user_profiles.memory_enabled = ?", false)

	var rows []models.Message
	err := r.db.WithContext(ctx).
		Where("NOT EXISTS (SELECT 1 FROM embeddings e WHERE e.message_id = messages.id)").
		Where("messages.content <> ?", models.RedactedContent).
		Where("EXISTS (?)", granted).
		Where("NOT EXISTS (?)", disabled).
		Order("timestamp ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *messageRepo) DeleteOlderThan(ctx context.Context, userID string, cutoff time.Time) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Message{}).
			Where("user_id = ? AND timestamp < ?", userID, cutoff.UTC()).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("message_id IN ?", ids).Delete(&models.Embedding{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Delete(&models.Message{}).Error
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
