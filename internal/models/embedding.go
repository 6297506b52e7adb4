package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// Embedding is 1:1 with its message and may lag it.
type Embedding struct {
	MessageID  string          `gorm:"column:message_id;type:varchar(64);primaryKey" json:"message_id"`
	Vector     pgvector.Vector `gorm:"column:vector;type:vector;not null" json:"-"`
	Model      string          `gorm:"column:model;type:varchar(64);not null" json:"model"`
	Dimensions int             `gorm:"column:dimensions;not null" json:"dimensions"`
	CreatedAt  time.Time       `gorm:"column:created_at;not null" json:"created_at"`

	Message *Message `gorm:"foreignKey:MessageID" json:"-"`
}

func (Embedding) TableName() string { return "embeddings" }
