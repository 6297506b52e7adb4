package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

func (r Role) Valid() bool { return r == RoleUser || r == RoleAgent }

// RedactedContent replaces message text when a user is anonymized.
const RedactedContent = "[REDACTED]"

// Message is immutable once written, except for anonymization.
type Message struct {
	ID        string `gorm:"column:id;type:varchar(64);primaryKey" json:"id"`
	SessionID string `gorm:"column:session_id;type:varchar(64);not null;index" json:"session_id"`
	UserID    string `gorm:"column:user_id;type:varchar(128);not null;index:idx_messages_user_ts,priority:1" json:"user_id"`

	Role        Role           `gorm:"column:role;type:varchar(16);not null" json:"role"`
	Content     string         `gorm:"column:content;type:text;not null" json:"content"`
	Timestamp   time.Time      `gorm:"column:timestamp;not null;index:idx_messages_user_ts,priority:2" json:"timestamp"`
	TokenCount  int            `gorm:"column:token_count;not null" json:"token_count"`
	Emotion     *string        `gorm:"column:emotion;type:varchar(32)" json:"emotion,omitempty"`
	SafetyCheck datatypes.JSON `gorm:"column:safety_check" json:"safety_check,omitempty"`

	Session *Session `gorm:"foreignKey:SessionID" json:"-"`
}

func (Message) TableName() string { return "messages" }

// BeforeCreate keeps JSON columns non-null so they always scan back.
func (m *Message) BeforeCreate(*gorm.DB) error {
	if len(m.SafetyCheck) == 0 {
		m.SafetyCheck = datatypes.JSON("null")
	}
	return nil
}
