package models

import "time"

type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

type Session struct {
	ID     string `gorm:"column:id;type:varchar(64);primaryKey" json:"id"`
	UserID string `gorm:"column:user_id;type:varchar(128);not null;index:idx_sessions_user_status,priority:1" json:"user_id"`

	Status       SessionStatus `gorm:"column:status;type:varchar(16);not null;index:idx_sessions_user_status,priority:2" json:"status"`
	StartedAt    time.Time     `gorm:"column:started_at;not null" json:"started_at"`
	LastActivity time.Time     `gorm:"column:last_activity;not null;index" json:"last_activity"`
	EndedAt      *time.Time    `gorm:"column:ended_at" json:"ended_at,omitempty"`
	MessageCount int           `gorm:"column:message_count;not null" json:"message_count"`
}

func (Session) TableName() string { return "sessions" }

// Duration is the span between start and the last recorded activity.
func (s *Session) Duration() time.Duration {
	d := s.LastActivity.Sub(s.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}
