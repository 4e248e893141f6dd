package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/deps"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/entities"
)

// ContentRepository implements deps.ContentStore
type ContentRepository struct {
	db *gorm.DB
}

// NewContentRepository creates a new content repository
func NewContentRepository(db *gorm.DB) deps.ContentStore {
	return &ContentRepository{db: db}
}

// Load returns every message of an account grouped by kind, pool in position order
func (r *ContentRepository) Load(ctx context.Context, accountID int64) (*entities.Content, error) {
	var models []entities.MessageModel
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("kind, slot, position, id").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load broadcast messages: %w", err)
	}

	content := &entities.Content{Templates: make(map[int]domain.Message)}
	for i := range models {
		msg := models[i].ToMessage()
		switch models[i].Kind {
		case entities.KindTemplate:
			content.Templates[models[i].Slot] = msg
		case entities.KindPool:
			content.Pool = append(content.Pool, msg)
		case entities.KindVariantA:
			content.VariantA = &msg
		case entities.KindVariantB:
			content.VariantB = &msg
		case entities.KindActive:
			content.Active = &msg
		}
	}
	return content, nil
}
