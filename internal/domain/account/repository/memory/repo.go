package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/deps"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/entities"
	accerrors "github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/errors"
)

// accountRepository implements deps.AccountStore using in-memory storage
type accountRepository struct {
	mu       sync.RWMutex
	nextID   int64
	accounts map[int64]*entities.Account
}

// NewRepository creates a new in-memory account repository
func NewRepository() deps.AccountStore {
	return &accountRepository{
		accounts: make(map[int64]*entities.Account),
	}
}

// Upsert creates the account or refreshes the one linked with the same phone
func (r *accountRepository) Upsert(ctx context.Context, account *entities.Account) (*entities.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, existing := range r.accounts {
		if existing.Phone == account.Phone {
			existing.DisplayName = account.DisplayName
			existing.IsProtected = account.IsProtected
			existing.Revoked = false
			existing.UpdatedAt = now
			cpy := *existing
			return &cpy, nil
		}
	}

	r.nextID++
	stored := &entities.Account{
		ID:          r.nextID,
		UserID:      account.UserID,
		Phone:       account.Phone,
		DisplayName: account.DisplayName,
		IsProtected: account.IsProtected,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.accounts[stored.ID] = stored

	cpy := *stored
	return &cpy, nil
}

// Get retrieves an account by id
func (r *accountRepository) Get(ctx context.Context, accountID int64) (*entities.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, exists := r.accounts[accountID]
	if !exists {
		return nil, accerrors.ErrAccountNotFound
	}
	cpy := *account
	return &cpy, nil
}

// FindByPhone retrieves an account by its phone number
func (r *accountRepository) FindByPhone(ctx context.Context, phone string) (*entities.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, account := range r.accounts {
		if account.Phone == phone {
			cpy := *account
			return &cpy, nil
		}
	}
	return nil, accerrors.ErrAccountNotFound
}

// ListByUser retrieves accounts of a user, oldest first
func (r *accountRepository) ListByUser(ctx context.Context, userID int64) ([]*entities.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*entities.Account
	for _, account := range r.accounts {
		if account.UserID == userID {
			cpy := *account
			result = append(result, &cpy)
		}
	}
	sortByID(result)
	return result, nil
}

// ListAll retrieves every linked account
func (r *accountRepository) ListAll(ctx context.Context) ([]*entities.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*entities.Account, 0, len(r.accounts))
	for _, account := range r.accounts {
		cpy := *account
		result = append(result, &cpy)
	}
	sortByID(result)
	return result, nil
}

// SetActive makes accountID the only active account of userID
func (r *accountRepository) SetActive(ctx context.Context, userID, accountID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, exists := r.accounts[accountID]
	if !exists || target.UserID != userID {
		return accerrors.ErrAccountNotFound
	}
	for _, account := range r.accounts {
		if account.UserID == userID {
			account.IsActive = account.ID == accountID
		}
	}
	return nil
}

// SetRevoked updates the revoked flag
func (r *accountRepository) SetRevoked(ctx context.Context, accountID int64, revoked bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, exists := r.accounts[accountID]
	if !exists {
		return accerrors.ErrAccountNotFound
	}
	account.Revoked = revoked
	return nil
}

// Delete removes an account
func (r *accountRepository) Delete(ctx context.Context, accountID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.accounts[accountID]; !exists {
		return accerrors.ErrAccountNotFound
	}
	delete(r.accounts, accountID)
	return nil
}

// IDs grow with creation time, so id order is creation order
func sortByID(accounts []*entities.Account) {
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
}
