package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/deps"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/entities"
)

// PremiumRepository implements deps.PremiumChecker over the users table
type PremiumRepository struct {
	db *gorm.DB
}

// NewPremiumRepository creates a new premium checker
func NewPremiumRepository(db *gorm.DB) deps.PremiumChecker {
	return &PremiumRepository{db: db}
}

// IsPremium reports whether premium_until lies after now, unknown users are not premium
func (r *PremiumRepository) IsPremium(ctx context.Context, userID int64, now time.Time) (bool, error) {
	var user entities.UserModel
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load user: %w", err)
	}
	return user.PremiumUntil != nil && user.PremiumUntil.After(now), nil
}
