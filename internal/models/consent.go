package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ConsentType string

const (
	ConsentMemoryStorage   ConsentType = "memory_storage"
	ConsentPersonalization ConsentType = "personalization"
	ConsentDataSharing     ConsentType = "data_sharing"
	ConsentAnalytics       ConsentType = "analytics"
	ConsentRetention       ConsentType = "retention"
)

func (t ConsentType) Valid() bool {
	switch t {
	case ConsentMemoryStorage, ConsentPersonalization, ConsentDataSharing, ConsentAnalytics, ConsentRetention:
		return true
	}
	return false
}

type ConsentStatus string

const (
	ConsentGranted ConsentStatus = "granted"
	ConsentDenied  ConsentStatus = "denied"
	ConsentRevoked ConsentStatus = "revoked"
	ConsentPending ConsentStatus = "pending"
)

// ConsentRecord holds at most one granted row per (user, type).
type ConsentRecord struct {
	ID          string        `gorm:"column:id;type:varchar(64);primaryKey" json:"id"`
	UserID      string        `gorm:"column:user_id;type:varchar(128);not null;index:idx_consent_lookup,priority:1" json:"user_id"`
	ConsentType ConsentType   `gorm:"column:consent_type;type:varchar(32);not null;index:idx_consent_lookup,priority:2" json:"consent_type"`
	Status      ConsentStatus `gorm:"column:status;type:varchar(16);not null;index:idx_consent_lookup,priority:3" json:"status"`

	GrantedAt     *time.Time     `gorm:"column:granted_at" json:"granted_at,omitempty"`
	RevokedAt     *time.Time     `gorm:"column:revoked_at" json:"revoked_at,omitempty"`
	ExpiresAt     *time.Time     `gorm:"column:expires_at;index" json:"expires_at,omitempty"`
	PolicyVersion string         `gorm:"column:policy_version;type:varchar(32)" json:"policy_version"`
	Metadata      datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time      `gorm:"column:created_at;not null" json:"created_at"`
}

func (ConsentRecord) TableName() string { return "consent_records" }

// IsActive reports whether the record grants consent at now. Expiry is
// evaluated live, so a stale granted row past expires_at does not count.
func (c *ConsentRecord) IsActive(now time.Time) bool {
	if c == nil || c.Status != ConsentGranted {
		return false
	}
	return c.ExpiresAt == nil || c.ExpiresAt.After(now)
}

func (c *ConsentRecord) BeforeCreate(*gorm.DB) error {
	if len(c.Metadata) == 0 {
		c.Metadata = datatypes.JSON("{}")
	}
	return nil
}
