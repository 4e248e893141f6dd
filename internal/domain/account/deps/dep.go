package deps

import (
	"context"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/entities"
)

// AccountStore persists linked accounts
type AccountStore interface {
	// Upsert creates the account or refreshes an existing one with the same phone, clearing the revoked flag
	Upsert(ctx context.Context, account *entities.Account) (*entities.Account, error)
	Get(ctx context.Context, accountID int64) (*entities.Account, error)
	FindByPhone(ctx context.Context, phone string) (*entities.Account, error)
	// ListByUser returns accounts of a user, oldest first
	ListByUser(ctx context.Context, userID int64) ([]*entities.Account, error)
	ListAll(ctx context.Context) ([]*entities.Account, error)
	// SetActive makes accountID the only active account of userID
	SetActive(ctx context.Context, userID, accountID int64) error
	SetRevoked(ctx context.Context, accountID int64, revoked bool) error
	Delete(ctx context.Context, accountID int64) error
}

// SessionVault persists protocol session material of linked accounts
type SessionVault interface {
	Store(ctx context.Context, accountID int64, data []byte) error
	Delete(ctx context.Context, accountID int64) error
}

// LoginGateway starts remote logins
type LoginGateway interface {
	// SendCode requests a verification code for phone
	SendCode(ctx context.Context, phone string) (entities.RemoteLogin, error)
}

// AuthSessionStore holds at most one pending login per user and expires it after inactivity
type AuthSessionStore interface {
	// Put stores s, replacing and closing any previous login of the same user
	Put(s *entities.AuthSession)
	Get(userID int64) (*entities.AuthSession, bool)
	// Touch restarts the inactivity timer
	Touch(userID int64)
	// Delete drops and closes the pending login
	Delete(userID int64)
}

// LifecycleListener reacts to account lifecycle events
type LifecycleListener interface {
	// OnSessionRevoked is called asynchronously after a revocation was detected
	OnSessionRevoked(ctx context.Context, account *entities.Account)
	// OnAccountRemoved is called synchronously before an account is deleted
	OnAccountRemoved(ctx context.Context, account *entities.Account)
}

// SessionManager owns account connections and the login state machine
type SessionManager interface {
	Connect(ctx context.Context, accountID int64) (domain.ProtocolClient, error)
	// WithClient lends the account connection for the duration of fn
	WithClient(ctx context.Context, accountID int64, fn func(ctx context.Context, client domain.ProtocolClient) error) error
	IsConnected(accountID int64) bool

	BeginLogin(ctx context.Context, userID int64, phone string) (*entities.LoginResult, error)
	SubmitCode(ctx context.Context, userID int64, code string) (*entities.LoginResult, error)
	SubmitPassword(ctx context.Context, userID int64, password string) (*entities.LoginResult, error)
	CancelLogin(ctx context.Context, userID int64)
	LoginState(userID int64) entities.LoginState

	DetectRevocation(ctx context.Context, accountID int64, err error) bool
	SwitchActive(ctx context.Context, userID, accountID int64) (*entities.Account, error)
	DeleteAccount(ctx context.Context, userID, accountID int64) error

	Account(ctx context.Context, accountID int64) (*entities.Account, error)
	ListAccounts(ctx context.Context, userID int64) ([]*entities.Account, error)
	ActiveAccount(ctx context.Context, userID int64) (*entities.Account, error)

	Subscribe(listener LifecycleListener)
	// Stats returns how many registered accounts hold a live connection
	Stats() (connected, total int)
}
