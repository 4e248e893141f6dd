package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gotd/td/session"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostgresSessionStorage implements session.Storage for one linked account
type PostgresSessionStorage struct {
	db        *gorm.DB
	accountID int64
}

// NewPostgresSessionStorage creates a new PostgreSQL-based session storage
func NewPostgresSessionStorage(db *gorm.DB, accountID int64) (*PostgresSessionStorage, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if accountID <= 0 {
		return nil, fmt.Errorf("account id is required")
	}
	return &PostgresSessionStorage{db: db, accountID: accountID}, nil
}

// LoadSession loads session data from PostgreSQL
func (s *PostgresSessionStorage) LoadSession(ctx context.Context) ([]byte, error) {
	var sess SessionModel
	err := s.db.WithContext(ctx).Where("account_id = ?", s.accountID).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if len(sess.SessionData) == 0 {
		return nil, session.ErrNotFound
	}
	return sess.SessionData, nil
}

// StoreSession stores session data to PostgreSQL
func (s *PostgresSessionStorage) StoreSession(ctx context.Context, data []byte) error {
	return storeSession(ctx, s.db, s.accountID, data)
}

// storeSession upserts the session row of an account
func storeSession(ctx context.Context, db *gorm.DB, accountID int64, data []byte) error {
	sess := SessionModel{AccountID: accountID, SessionData: data}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"session_data": data,
			"updated_at":   time.Now(),
		}),
	}).Create(&sess).Error
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Ensure PostgresSessionStorage implements session.Storage interface
var _ session.Storage = (*PostgresSessionStorage)(nil)

// SessionVault writes and drops persisted session material of linked accounts
type SessionVault struct {
	db *gorm.DB
}

// NewSessionVault creates a session vault over the sessions table
func NewSessionVault(db *gorm.DB) *SessionVault {
	return &SessionVault{db: db}
}

// Store persists session data produced by a finished login
func (v *SessionVault) Store(ctx context.Context, accountID int64, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty session data for account %d", accountID)
	}
	return storeSession(ctx, v.db, accountID, data)
}

// Delete removes the session of an account, missing rows are not an error
func (v *SessionVault) Delete(ctx context.Context, accountID int64) error {
	if err := v.db.WithContext(ctx).Where("account_id = ?", accountID).Delete(&SessionModel{}).Error; err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
