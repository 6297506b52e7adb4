package sqldb

import (
	"context"
	"encoding/json"

	"github.com/yoockh/yoomemory/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type DataRightsRepository interface {
	// DeleteUser removes everything the user owns except audit entries,
	// children before parents, in one transaction. entry, when non-nil, is
	// written in the same transaction.
	DeleteUser(ctx context.Context, userID string, entry *models.AuditLog) (models.DeletionCounts, error)
	// AnonymizeUser strips identifying content but keeps row structure.
	AnonymizeUser(ctx context.Context, userID string, entry *models.AuditLog) (models.AnonymizeCounts, error)
}

type dataRightsRepo struct {
	db *gorm.DB
}

func NewDataRightsRepo(db *gorm.DB) DataRightsRepository {
	return &dataRightsRepo{db: db}
}

func (r *dataRightsRepo) DeleteUser(ctx context.Context, userID string, entry *models.AuditLog) (models.DeletionCounts, error) {
	var counts models.DeletionCounts
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("message_id IN (?)", tx.Model(&models.Message{}).Select("id").Where("user_id = ?", userID)).
			Delete(&models.Embedding{})
		if res.Error != nil {
			return res.Error
		}
		counts.Embeddings = res.RowsAffected

		if res = tx.Where("user_id = ?", userID).Delete(&models.Message{}); res.Error != nil {
			return res.Error
		}
		counts.Messages = res.RowsAffected

		if res = tx.Where("user_id = ?", userID).Delete(&models.Session{}); res.Error != nil {
			return res.Error
		}
		counts.Sessions = res.RowsAffected

		if res = tx.Where("user_id = ?", userID).Delete(&models.ConsentRecord{}); res.Error != nil {
			return res.Error
		}
		counts.ConsentRecords = res.RowsAffected

		if res = tx.Where("user_id = ?", userID).Delete(&models.UserProfile{}); res.Error != nil {
			return res.Error
		}
		counts.Profiles = res.RowsAffected

		return writeEntry(tx, entry, counts)
	})
	if err != nil {
		return models.DeletionCounts{}, err
	}
	return counts, nil
}

func (r *dataRightsRepo) AnonymizeUser(ctx context.Context, userID string, entry *models.AuditLog) (models.AnonymizeCounts, error) {
	var counts models.AnonymizeCounts
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("message_id IN (?)", tx.Model(&models.Message{}).Select("id").Where("user_id = ?", userID)).
			Delete(&models.Embedding{})
		if res.Error != nil {
			return res.Error
		}
		counts.Embeddings = res.RowsAffected

		res = tx.Model(&models.Message{}).
			Where("user_id = ?", userID).
			Updates(map[string]any{
				"content":      models.RedactedContent,
				"emotion":      nil,
				"safety_check": datatypes.JSON("null"),
			})
		if res.Error != nil {
			return res.Error
		}
		counts.Messages = res.RowsAffected

		res = tx.Model(&models.UserProfile{}).
			Where("user_id = ?", userID).
			Updates(map[string]any{
				"nickname":           nil,
				"topics_of_interest": datatypes.JSONSlice[string]{},
				"conversation_style": "",
			})
		if res.Error != nil {
			return res.Error
		}
		counts.Profiles = res.RowsAffected

		return writeEntry(tx, entry, counts)
	})
	if err != nil {
		return models.AnonymizeCounts{}, err
	}
	return counts, nil
}

// writeEntry records the audit entry in the same transaction, with the row
// counts as its details.
func writeEntry(tx *gorm.DB, entry *models.AuditLog, counts any) error {
	if entry == nil {
		return nil
	}
	if b, err := json.Marshal(counts); err == nil {
		entry.Details = datatypes.JSON(b)
	}
	return tx.Create(entry).Error
}
