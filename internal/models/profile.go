package models

import (
	"time"

	"gorm.io/datatypes"
)

// UserProfile is created on first contact and touched on every turn.
type UserProfile struct {
	UserID            string                      `gorm:"column:user_id;type:varchar(128);primaryKey" json:"user_id"`
	Nickname          *string                     `gorm:"column:nickname;type:text" json:"nickname,omitempty"`
	ConversationStyle string                      `gorm:"column:conversation_style;type:text" json:"conversation_style"`
	Topics            datatypes.JSONSlice[string] `gorm:"column:topics_of_interest" json:"topics_of_interest"`

	// Bools carry no gorm default: a default would swallow an explicit false on insert.
	MemoryEnabled      bool `gorm:"column:memory_enabled;not null" json:"memory_enabled"`
	RetentionDays      int  `gorm:"column:data_retention_days;not null" json:"data_retention_days"`
	ShareWithCompanion bool `gorm:"column:share_with_companion;not null" json:"share_with_companion"`

	CreatedAt    time.Time `gorm:"column:created_at;not null" json:"created_at"`
	LastActiveAt time.Time `gorm:"column:last_active_at;not null;index" json:"last_active_at"`

	// Sessions declares sessions.user_id -> user_profiles.user_id; it is never preloaded.
	Sessions []Session `gorm:"foreignKey:UserID;references:UserID" json:"-"`
}

func (UserProfile) TableName() string { return "user_profiles" }

// Snippet renders the parts of the profile that are safe to hand to a
// text generator.
func (p *UserProfile) Snippet() string {
	if p == nil {
		return ""
	}
	out := ""
	if p.Nickname != nil && *p.Nickname != "" {
		out += "Preferred name: " + *p.Nickname + "\n"
	}
	if p.ConversationStyle != "" {
		out += "Conversation style: " + p.ConversationStyle + "\n"
	}
	if len(p.Topics) > 0 {
		out += "Interests: "
		for i, t := range p.Topics {
			if i > 0 {
				out += ", "
			}
			out += t
		}
		out += "\n"
	}
	return out
}
