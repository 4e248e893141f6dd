package entities

import "time"

// AccountModel is a GORM model for accounts table
type AccountModel struct {
	ID          int64     `gorm:"primaryKey"`
	UserID      int64     `gorm:"not null;index"`
	Phone       string    `gorm:"not null;size:32;uniqueIndex"`
	DisplayName string    `gorm:"size:255;default:''"`
	IsActive    bool      `gorm:"not null;default:false"`
	IsProtected bool      `gorm:"not null;default:false"`
	Revoked     bool      `gorm:"not null;default:false"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

func (AccountModel) TableName() string {
	return "accounts"
}

// ToEntity converts DB model to domain entity
func (m *AccountModel) ToEntity() *Account {
	return &Account{
		ID:          m.ID,
		UserID:      m.UserID,
		Phone:       m.Phone,
		DisplayName: m.DisplayName,
		IsActive:    m.IsActive,
		IsProtected: m.IsProtected,
		Revoked:     m.Revoked,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}
