package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Audit actions.
const (
	AuditConsentGranted      = "consent_granted"
	AuditConsentRevoked      = "consent_revoked"
	AuditConsentExpired      = "consent_expired"
	AuditExportRequested     = "data_export_requested"
	AuditExportCompleted     = "data_export_completed"
	AuditDataDeleted         = "data_deleted"
	AuditDataAnonymized      = "data_anonymized"
	AuditRetentionSweep      = "retention_sweep"
	AuditMemoryAccessed      = "memory_accessed"
	AuditPersonalizationUsed = "personalization_applied"
)

// AuditLog is append-only and is never removed by user deletion.
type AuditLog struct {
	ID           string         `gorm:"column:id;type:varchar(64);primaryKey" json:"id" bson:"_id"`
	UserID       *string        `gorm:"column:user_id;type:varchar(128);index" json:"user_id,omitempty" bson:"user_id,omitempty"`
	Action       string         `gorm:"column:action;type:varchar(64);not null;index" json:"action" bson:"action"`
	ResourceType string         `gorm:"column:resource_type;type:varchar(64)" json:"resource_type" bson:"resource_type"`
	ResourceID   string         `gorm:"column:resource_id;type:varchar(128)" json:"resource_id" bson:"resource_id"`
	Timestamp    time.Time      `gorm:"column:timestamp;not null;index" json:"timestamp" bson:"timestamp"`
	Details      datatypes.JSON `gorm:"column:details" json:"details,omitempty" bson:"-"`
}

func (AuditLog) TableName() string { return "audit_logs" }

func (a *AuditLog) BeforeCreate(*gorm.DB) error {
	if len(a.Details) == 0 {
		a.Details = datatypes.JSON("{}")
	}
	return nil
}
