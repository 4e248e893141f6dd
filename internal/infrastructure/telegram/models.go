package telegram

import "time"

// SessionModel represents database model for MTProto session of a linked account
type SessionModel struct {
	ID          uint      `gorm:"primaryKey"`
	AccountID   int64     `gorm:"uniqueIndex;not null"`
	SessionData []byte    `gorm:"type:bytea;not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for SessionModel
func (SessionModel) TableName() string {
	return "sessions"
}
