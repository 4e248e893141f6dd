package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/deps"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/entities"
)

// CycleRepository implements deps.CycleStore
type CycleRepository struct {
	db *gorm.DB
}

// NewCycleRepository creates a new cycle statistics repository
func NewCycleRepository(db *gorm.DB) deps.CycleStore {
	return &CycleRepository{db: db}
}

func (r *CycleRepository) Save(ctx context.Context, stats *entities.CycleStats) error {
	if err := r.db.WithContext(ctx).Create(entities.NewCycleModel(stats)).Error; err != nil {
		return fmt.Errorf("failed to save cycle stats: %w", err)
	}
	return nil
}

// ListRecent returns the latest cycles of an account, newest first
func (r *CycleRepository) ListRecent(ctx context.Context, accountID int64, limit int) ([]*entities.CycleStats, error) {
	var models []entities.CycleModel
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("finished_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list cycles: %w", err)
	}

	result := make([]*entities.CycleStats, 0, len(models))
	for i := range models {
		result = append(result, models[i].ToEntity())
	}
	return result, nil
}

func (r *CycleRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("finished_at < ?", before).Delete(&entities.CycleModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune cycles: %w", result.Error)
	}
	return result.RowsAffected, nil
}
