package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/deps"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/entities"
)

// GroupRepository implements deps.GroupStore
type GroupRepository struct {
	db *gorm.DB
}

// NewGroupRepository creates a new group repository
func NewGroupRepository(db *gorm.DB) deps.GroupStore {
	return &GroupRepository{db: db}
}

// Sync upserts the listed groups and marks every other group of the account as left
func (r *GroupRepository) Sync(ctx context.Context, accountID int64, groups []domain.Group, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(groups) > 0 {
			models := make([]entities.GroupModel, 0, len(groups))
			for _, g := range groups {
				models = append(models, entities.GroupModel{
					AccountID:  accountID,
					PeerKind:   string(g.Kind),
					PeerID:     g.ID,
					AccessHash: g.AccessHash,
					Title:      g.Title,
					SyncedAt:   at,
				})
			}

			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "account_id"}, {Name: "peer_kind"}, {Name: "peer_id"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"access_hash": gorm.Expr("EXCLUDED.access_hash"),
					"title":       gorm.Expr("EXCLUDED.title"),
					"synced_at":   gorm.Expr("EXCLUDED.synced_at"),
					"has_left":    false,
				}),
			}).CreateInBatches(models, 200).Error
			if err != nil {
				return fmt.Errorf("failed to upsert groups: %w", err)
			}
		}

		err := tx.Model(&entities.GroupModel{}).
			Where("account_id = ? AND synced_at < ?", accountID, at).
			Updates(map[string]interface{}{"has_left": true, "synced_at": at}).Error
		if err != nil {
			return fmt.Errorf("failed to mark left groups: %w", err)
		}
		return nil
	})
}

// Active returns groups that are neither left nor blacklisted, oldest first
func (r *GroupRepository) Active(ctx context.Context, accountID int64) ([]*entities.Destination, error) {
	var models []entities.GroupModel
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND NOT blacklisted AND NOT has_left", accountID).
		Order("id").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active groups: %w", err)
	}

	result := make([]*entities.Destination, 0, len(models))
	for i := range models {
		result = append(result, models[i].ToEntity())
	}
	return result, nil
}

// LastSync returns when the groups of an account were last listed, zero when never
func (r *GroupRepository) LastSync(ctx context.Context, accountID int64) (time.Time, error) {
	var last *time.Time
	err := r.db.WithContext(ctx).
		Model(&entities.GroupModel{}).
		Select("MAX(synced_at)").
		Where("account_id = ?", accountID).
		Scan(&last).Error
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last group sync: %w", err)
	}
	if last == nil {
		return time.Time{}, nil
	}
	return *last, nil
}

const recordFailureSQL = `
UPDATE groups SET
	failure_count = failure_count + 1,
	last_error = @reason,
	blacklisted = blacklisted OR (@after > 0 AND failure_count + 1 >= @after)
WHERE id = @id
RETURNING blacklisted`

// RecordFailure counts a failed send and reports whether the group is blacklisted now
func (r *GroupRepository) RecordFailure(ctx context.Context, groupID int64, reason string, blacklistAfter int) (bool, error) {
	var blacklisted bool
	err := r.db.WithContext(ctx).Raw(recordFailureSQL, map[string]interface{}{
		"reason": reason,
		"after":  blacklistAfter,
		"id":     groupID,
	}).Scan(&blacklisted).Error
	if err != nil {
		return false, fmt.Errorf("failed to record group failure: %w", err)
	}
	return blacklisted, nil
}

// RecordSuccess resets the failure streak of a group
func (r *GroupRepository) RecordSuccess(ctx context.Context, groupID int64) error {
	err := r.db.WithContext(ctx).
		Model(&entities.GroupModel{}).
		Where("id = ?", groupID).
		Update("failure_count", 0).Error
	if err != nil {
		return fmt.Errorf("failed to reset group failures: %w", err)
	}
	return nil
}
