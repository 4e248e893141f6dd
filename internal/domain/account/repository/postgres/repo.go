package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/deps"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/entities"
	accerrors "github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/errors"
)

// Repository implements deps.AccountStore using PostgreSQL
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new PostgreSQL account repository
func NewRepository(db *gorm.DB) deps.AccountStore {
	return &Repository{db: db}
}

// Upsert creates the account or refreshes the one linked with the same phone
func (r *Repository) Upsert(ctx context.Context, account *entities.Account) (*entities.Account, error) {
	model := &entities.AccountModel{
		UserID:      account.UserID,
		Phone:       account.Phone,
		DisplayName: account.DisplayName,
		IsProtected: account.IsProtected,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "phone"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"display_name": account.DisplayName,
				"is_protected": account.IsProtected,
				"revoked":      false,
				"updated_at":   time.Now(),
			}),
		}).
		Create(model).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert account: %w", err)
	}

	// Conflict updates don't fill the model back, read the row again
	return r.FindByPhone(ctx, account.Phone)
}

// Get retrieves an account by id
func (r *Repository) Get(ctx context.Context, accountID int64) (*entities.Account, error) {
	var model entities.AccountModel
	if err := r.db.WithContext(ctx).Where("id = ?", accountID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, accerrors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return model.ToEntity(), nil
}

// FindByPhone retrieves an account by its phone number
func (r *Repository) FindByPhone(ctx context.Context, phone string) (*entities.Account, error) {
	var model entities.AccountModel
	if err := r.db.WithContext(ctx).Where("phone = ?", phone).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, accerrors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to find account by phone: %w", err)
	}
	return model.ToEntity(), nil
}

// ListByUser retrieves accounts of a user, oldest first
func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]*entities.Account, error) {
	var models []entities.AccountModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return toEntities(models), nil
}

// ListAll retrieves every linked account
func (r *Repository) ListAll(ctx context.Context) ([]*entities.Account, error) {
	var models []entities.AccountModel
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list all accounts: %w", err)
	}
	return toEntities(models), nil
}

// SetActive makes accountID the only active account of userID
func (r *Repository) SetActive(ctx context.Context, userID, accountID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Clear first, the partial unique index allows one active row per user
		if err := tx.Model(&entities.AccountModel{}).
			Where("user_id = ? AND id <> ? AND is_active", userID, accountID).
			Update("is_active", false).Error; err != nil {
			return fmt.Errorf("failed to clear active account: %w", err)
		}

		result := tx.Model(&entities.AccountModel{}).
			Where("id = ? AND user_id = ?", accountID, userID).
			Update("is_active", true)
		if result.Error != nil {
			return fmt.Errorf("failed to set active account: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return accerrors.ErrAccountNotFound
		}
		return nil
	})
}

// SetRevoked updates the revoked flag
func (r *Repository) SetRevoked(ctx context.Context, accountID int64, revoked bool) error {
	result := r.db.WithContext(ctx).
		Model(&entities.AccountModel{}).
		Where("id = ?", accountID).
		Update("revoked", revoked)
	if result.Error != nil {
		return fmt.Errorf("failed to update revoked flag: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return accerrors.ErrAccountNotFound
	}
	return nil
}

// Delete removes an account, its session row is removed by cascade
func (r *Repository) Delete(ctx context.Context, accountID int64) error {
	result := r.db.WithContext(ctx).Where("id = ?", accountID).Delete(&entities.AccountModel{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return accerrors.ErrAccountNotFound
	}
	return nil
}

func toEntities(models []entities.AccountModel) []*entities.Account {
	accounts := make([]*entities.Account, len(models))
	for i := range models {
		accounts[i] = models[i].ToEntity()
	}
	return accounts
}
