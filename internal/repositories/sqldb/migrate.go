package sqldb

import (
	"github.com/yoockh/yoomemory/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates every table the memory engine owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.UserProfile{},
		&models.Session{},
		&models.Message{},
		&models.Embedding{},
		&models.ConsentRecord{},
		&models.AuditLog{},
	)
}
