// Package postgres implements broadcast stores on PostgreSQL with GORM.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/deps"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/entities"
)

// SettingsRepository implements deps.SettingsStore
type SettingsRepository struct {
	db *gorm.DB
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *gorm.DB) deps.SettingsStore {
	return &SettingsRepository{db: db}
}

// Get returns the settings of an account, defaults when no row exists
func (r *SettingsRepository) Get(ctx context.Context, accountID int64) (*entities.Settings, error) {
	var model entities.SettingsModel
	err := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &entities.Settings{AccountID: accountID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get broadcast settings: %w", err)
	}
	return model.ToEntity(), nil
}

// Day keys sort chronologically. An increment for a day older than the row
// (a cycle that started before the midnight reset) leaves the row untouched.
const incrementDailySQL = `
INSERT INTO broadcast_settings (account_id, daily_sent, daily_day, updated_at)
VALUES (@account, LEAST(@n, @limit), @day, NOW())
ON CONFLICT (account_id) DO UPDATE SET
	daily_sent = CASE
		WHEN broadcast_settings.daily_day = EXCLUDED.daily_day
			THEN LEAST(broadcast_settings.daily_sent + @n, @limit)
		WHEN broadcast_settings.daily_day < EXCLUDED.daily_day
			THEN LEAST(@n, @limit)
		ELSE broadcast_settings.daily_sent
	END,
	daily_day = GREATEST(broadcast_settings.daily_day, EXCLUDED.daily_day),
	updated_at = NOW()
RETURNING daily_sent`

// IncrementDailySent adds n to the day counter in one statement, never exceeding limit.
// It returns the counter of the row's current day.
func (r *SettingsRepository) IncrementDailySent(ctx context.Context, accountID int64, day string, n, limit int) (int, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}

	var sent int
	err := r.db.WithContext(ctx).Raw(incrementDailySQL, map[string]interface{}{
		"account": accountID,
		"n":       n,
		"limit":   limit,
		"day":     day,
	}).Scan(&sent).Error
	if err != nil {
		return 0, fmt.Errorf("failed to increment daily counter: %w", err)
	}
	return sent, nil
}

// ResetDaily zeroes counters left over from previous days
func (r *SettingsRepository) ResetDaily(ctx context.Context, day string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&entities.SettingsModel{}).
		Where("daily_day <> ?", day).
		Updates(map[string]interface{}{
			"daily_sent": 0,
			"daily_day":  day,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reset daily counters: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// SavePoolCursor stores the next pool position
func (r *SettingsRepository) SavePoolCursor(ctx context.Context, accountID int64, cursor int) error {
	model := &entities.SettingsModel{AccountID: accountID, PoolCursor: cursor}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"pool_cursor", "updated_at"}),
		}).
		Create(model).Error
	if err != nil {
		return fmt.Errorf("failed to save pool cursor: %w", err)
	}
	return nil
}

// SaveLastVariant stores the variant sent last
func (r *SettingsRepository) SaveLastVariant(ctx context.Context, accountID int64, variant entities.Variant) error {
	model := &entities.SettingsModel{AccountID: accountID, LastVariant: string(variant)}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_variant", "updated_at"}),
		}).
		Create(model).Error
	if err != nil {
		return fmt.Errorf("failed to save last variant: %w", err)
	}
	return nil
}
