package entities

import (
	"time"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain"
)

// SettingsModel is a GORM model for broadcast_settings table.
// Zero durations and caps mean "use the service default".
type SettingsModel struct {
	AccountID            int64  `gorm:"primaryKey"`
	IntervalSeconds      int    `gorm:"not null;default:0"`
	GroupDelayMinSeconds int    `gorm:"not null;default:0"`
	GroupDelayMaxSeconds int    `gorm:"not null;default:0"`
	DailyCap             int    `gorm:"not null;default:0"`
	DailySent            int    `gorm:"not null;default:0"`
	DailyDay             string `gorm:"size:10;default:''"`
	QuietStart           int    `gorm:"not null;default:0"`
	QuietEnd             int    `gorm:"not null;default:0"`
	ScheduleStart        int    `gorm:"not null;default:0"`
	ScheduleEnd          int    `gorm:"not null;default:0"`
	TemplateSlot         *int
	ForwardMode          bool      `gorm:"not null;default:false"`
	PoolEnabled          bool      `gorm:"not null;default:false"`
	PoolMode             string    `gorm:"size:16;default:'random'"`
	PoolCursor           int       `gorm:"not null;default:0"`
	ABMode               string    `gorm:"column:ab_mode;size:16;default:''"`
	LastVariant          string    `gorm:"size:1;default:''"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime"`
}

func (SettingsModel) TableName() string {
	return "broadcast_settings"
}

// ToEntity converts DB model to domain entity
func (m *SettingsModel) ToEntity() *Settings {
	return &Settings{
		AccountID:     m.AccountID,
		Interval:      time.Duration(m.IntervalSeconds) * time.Second,
		GroupDelayMin: time.Duration(m.GroupDelayMinSeconds) * time.Second,
		GroupDelayMax: time.Duration(m.GroupDelayMaxSeconds) * time.Second,
		DailyCap:      m.DailyCap,
		DailySent:     m.DailySent,
		DailyDay:      m.DailyDay,
		QuietHours:    Window{Start: m.QuietStart, End: m.QuietEnd},
		Schedule:      Window{Start: m.ScheduleStart, End: m.ScheduleEnd},
		TemplateSlot:  m.TemplateSlot,
		ForwardMode:   m.ForwardMode,
		PoolEnabled:   m.PoolEnabled,
		PoolMode:      PoolMode(m.PoolMode),
		PoolCursor:    m.PoolCursor,
		ABMode:        ABMode(m.ABMode),
		LastVariant:   Variant(m.LastVariant),
	}
}

// Message kinds stored in broadcast_messages
const (
	KindTemplate = "template"
	KindPool     = "pool"
	KindVariantA = "variant_a"
	KindVariantB = "variant_b"
	KindActive   = "active"
)

// MessageModel is a GORM model for broadcast_messages table
type MessageModel struct {
	ID        int64           `gorm:"primaryKey"`
	AccountID int64           `gorm:"not null;index"`
	Kind      string          `gorm:"size:16;not null"`
	Slot      int             `gorm:"not null;default:0"`
	Position  int             `gorm:"not null;default:0"`
	Text      string          `gorm:"type:text;not null"`
	Entities  []domain.Entity `gorm:"type:jsonb;serializer:json"`
	CreatedAt time.Time       `gorm:"autoCreateTime"`
}

func (MessageModel) TableName() string {
	return "broadcast_messages"
}

// ToMessage converts DB model to a protocol message
func (m *MessageModel) ToMessage() domain.Message {
	return domain.Message{Text: m.Text, Entities: m.Entities}
}

// GroupModel is a GORM model for groups table
type GroupModel struct {
	ID           int64     `gorm:"primaryKey"`
	AccountID    int64     `gorm:"not null;uniqueIndex:idx_groups_account_peer"`
	PeerKind     string    `gorm:"size:16;not null;uniqueIndex:idx_groups_account_peer"`
	PeerID       int64     `gorm:"not null;uniqueIndex:idx_groups_account_peer"`
	AccessHash   int64     `gorm:"not null;default:0"`
	Title        string    `gorm:"size:255;default:''"`
	Blacklisted  bool      `gorm:"not null;default:false"`
	Left         bool      `gorm:"column:has_left;not null;default:false"`
	FailureCount int       `gorm:"not null;default:0"`
	LastError    string    `gorm:"type:text;default:''"`
	SyncedAt     time.Time `gorm:"not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

func (GroupModel) TableName() string {
	return "groups"
}

// ToEntity converts DB model to domain entity
func (m *GroupModel) ToEntity() *Destination {
	return &Destination{
		ID:        m.ID,
		AccountID: m.AccountID,
		Peer: domain.Peer{
			Kind:       domain.PeerKind(m.PeerKind),
			ID:         m.PeerID,
			AccessHash: m.AccessHash,
		},
		Title:        m.Title,
		Blacklisted:  m.Blacklisted,
		FailureCount: m.FailureCount,
		LastError:    m.LastError,
		SyncedAt:     m.SyncedAt,
	}
}

// CycleModel is a GORM model for broadcast_cycles table
type CycleModel struct {
	ID         int64     `gorm:"primaryKey"`
	UserID     int64     `gorm:"not null"`
	AccountID  int64     `gorm:"not null;index"`
	Cycle      int       `gorm:"not null"`
	Source     string    `gorm:"size:16;not null"`
	Outcome    string    `gorm:"size:32;not null"`
	Sent       int       `gorm:"not null;default:0"`
	Failed     int       `gorm:"not null;default:0"`
	Skipped    int       `gorm:"not null;default:0"`
	StartedAt  time.Time `gorm:"not null"`
	FinishedAt time.Time `gorm:"not null;index"`
}

func (CycleModel) TableName() string {
	return "broadcast_cycles"
}

// NewCycleModel converts cycle stats to a DB model
func NewCycleModel(s *CycleStats) *CycleModel {
	return &CycleModel{
		UserID:     s.UserID,
		AccountID:  s.AccountID,
		Cycle:      s.Cycle,
		Source:     string(s.Source),
		Outcome:    string(s.Outcome),
		Sent:       s.Sent,
		Failed:     s.Failed,
		Skipped:    s.Skipped,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
	}
}

// ToEntity converts DB model to domain entity
func (m *CycleModel) ToEntity() *CycleStats {
	return &CycleStats{
		UserID:     m.UserID,
		AccountID:  m.AccountID,
		Cycle:      m.Cycle,
		Source:     Source(m.Source),
		Outcome:    CycleOutcome(m.Outcome),
		Sent:       m.Sent,
		Failed:     m.Failed,
		Skipped:    m.Skipped,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
	}
}

// UserModel is a GORM model for users table, only the premium exemption is read here
type UserModel struct {
	UserID       int64 `gorm:"primaryKey"`
	PremiumUntil *time.Time
}

func (UserModel) TableName() string {
	return "users"
}
