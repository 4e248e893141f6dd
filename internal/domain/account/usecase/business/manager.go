package business

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/deps"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/entities"
	accerrors "github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/errors"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/infrastructure/metrics"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/utils"
)

const disconnectTimeout = 10 * time.Second

// Config holds login and account policy settings
type Config struct {
	CodeLength          int
	MaxPasswordAttempts int
	PasswordCooldown    time.Duration
	// ProtectedPhone can never be deleted, empty disables the check
	ProtectedPhone string
}

// SessionManager implements deps.SessionManager
type SessionManager struct {
	accounts deps.AccountStore
	vault    deps.SessionVault
	gateway  deps.LoginGateway
	logins   deps.AuthSessionStore
	factory  domain.ClientFactory
	clock    utils.Clock
	metrics  *metrics.Metrics
	cfg      Config
	logger   zerolog.Logger

	mu    sync.RWMutex
	conns map[int64]*connection

	userLocks sync.Map // int64 -> *sync.Mutex

	listenersMu sync.RWMutex
	listeners   []deps.LifecycleListener
}

// connection guards one account client: Lock while (dis)connecting, RLock while lent out
type connection struct {
	mu     sync.RWMutex
	client domain.ProtocolClient
}

// NewSessionManager creates a new session manager
func NewSessionManager(
	accounts deps.AccountStore,
	vault deps.SessionVault,
	gateway deps.LoginGateway,
	logins deps.AuthSessionStore,
	factory domain.ClientFactory,
	clock utils.Clock,
	m *metrics.Metrics,
	cfg Config,
	logger zerolog.Logger,
) *SessionManager {
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = 5
	}
	if cfg.MaxPasswordAttempts <= 0 {
		cfg.MaxPasswordAttempts = 3
	}
	if cfg.PasswordCooldown <= 0 {
		cfg.PasswordCooldown = time.Minute
	}
	cfg.ProtectedPhone = utils.NormalizePhone(cfg.ProtectedPhone)

	return &SessionManager{
		accounts: accounts,
		vault:    vault,
		gateway:  gateway,
		logins:   logins,
		factory:  factory,
		clock:    clock,
		metrics:  m,
		cfg:      cfg,
		logger:   logger.With().Str("usecase", "session_manager").Logger(),
		conns:    make(map[int64]*connection),
	}
}

// Subscribe registers a lifecycle listener
func (m *SessionManager) Subscribe(listener deps.LifecycleListener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, listener)
}

// Connect returns a connected client for the account, connecting lazily
func (m *SessionManager) Connect(ctx context.Context, accountID int64) (domain.ProtocolClient, error) {
	account, err := m.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.Revoked {
		return nil, fmt.Errorf("%w: %w", accerrors.ErrSessionRevoked,
			domain.NewProtocolError(domain.KindSessionRevoked, "", domain.ErrNotAuthorized))
	}

	client, err := m.connect(ctx, account)
	if err != nil {
		if domain.IsSessionRevoked(err) {
			m.DetectRevocation(context.WithoutCancel(ctx), accountID, err)
			return nil, fmt.Errorf("%w: %w", accerrors.ErrSessionRevoked, err)
		}
		return nil, fmt.Errorf("%w: %w", accerrors.ErrConnection, err)
	}
	m.refreshGauges()
	return client, nil
}

func (m *SessionManager) connect(ctx context.Context, account *entities.Account) (domain.ProtocolClient, error) {
	conn := m.connection(account.ID)

	conn.mu.Lock()
	defer conn.mu.Unlock()

	if conn.client == nil {
		client, err := m.factory.NewClient(account.ID, account.Phone)
		if err != nil {
			return nil, err
		}
		conn.client = client
	}
	if conn.client.IsConnected() {
		return conn.client, nil
	}

	if err := conn.client.Connect(ctx); err != nil {
		m.metrics.RecordConnection("error")
		m.logger.Warn().Err(err).
			Int64("account_id", account.ID).
			Str("phone", utils.MaskPhoneNumber(account.Phone)).
			Msg("failed to connect account")
		return nil, err
	}

	m.metrics.RecordConnection("ok")
	m.logger.Info().Int64("account_id", account.ID).Msg("account connected")
	return conn.client, nil
}

// WithClient lends the account connection for the duration of fn.
// A session revocation reported by fn is handled before returning.
func (m *SessionManager) WithClient(ctx context.Context, accountID int64, fn func(ctx context.Context, client domain.ProtocolClient) error) error {
	if _, err := m.Connect(ctx, accountID); err != nil {
		return err
	}

	conn := m.connection(accountID)
	conn.mu.RLock()
	client := conn.client
	if client == nil || !client.IsConnected() {
		conn.mu.RUnlock()
		return fmt.Errorf("%w: %w", accerrors.ErrConnection, domain.NewProtocolError(domain.KindNetwork, "", domain.ErrNotConnected))
	}
	err := fn(ctx, client)
	conn.mu.RUnlock()

	if domain.IsSessionRevoked(err) {
		m.DetectRevocation(context.WithoutCancel(ctx), accountID, err)
	}
	return err
}

// IsConnected reports whether the account has a live connection
func (m *SessionManager) IsConnected(accountID int64) bool {
	m.mu.RLock()
	conn, ok := m.conns[accountID]
	m.mu.RUnlock()
	if !ok {
		return false
	}

	conn.mu.RLock()
	defer conn.mu.RUnlock()
	return conn.client != nil && conn.client.IsConnected()
}

// DetectRevocation handles err if it signals a revoked session.
// It returns false for any other error.
func (m *SessionManager) DetectRevocation(ctx context.Context, accountID int64, err error) bool {
	if !domain.IsSessionRevoked(err) {
		return false
	}

	account, getErr := m.accounts.Get(ctx, accountID)
	if getErr != nil {
		m.logger.Warn().Err(getErr).Int64("account_id", accountID).Msg("revoked account not found")
		m.dropConnection(accountID)
		return true
	}

	alreadyRevoked := account.Revoked
	if !alreadyRevoked {
		if err := m.accounts.SetRevoked(ctx, accountID, true); err != nil {
			m.logger.Error().Err(err).Int64("account_id", accountID).Msg("failed to mark account revoked")
		}
		if err := m.vault.Delete(ctx, accountID); err != nil {
			m.logger.Error().Err(err).Int64("account_id", accountID).Msg("failed to drop revoked session")
		}
	}
	m.dropConnection(accountID)

	if alreadyRevoked {
		return true
	}

	account.Revoked = true
	m.metrics.RecordSessionRevoked()
	m.logger.Warn().Err(err).
		Int64("account_id", accountID).
		Int64("user_id", account.UserID).
		Msg("session revoked")

	for _, listener := range m.snapshotListeners() {
		go func(l deps.LifecycleListener) {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error().Interface("panic", r).Msg("revocation listener panicked")
				}
			}()
			l.OnSessionRevoked(context.Background(), account)
		}(listener)
	}
	return true
}

// SwitchActive makes accountID the active account of userID
func (m *SessionManager) SwitchActive(ctx context.Context, userID, accountID int64) (*entities.Account, error) {
	account, err := m.ownedAccount(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}

	unlock := m.lockUser(userID)
	defer unlock()

	if err := m.accounts.SetActive(ctx, userID, accountID); err != nil {
		return nil, err
	}
	account.IsActive = true

	m.logger.Info().Int64("user_id", userID).Int64("account_id", accountID).Msg("active account switched")
	return account, nil
}

// DeleteAccount stops work on the account, disconnects it and removes it
func (m *SessionManager) DeleteAccount(ctx context.Context, userID, accountID int64) error {
	account, err := m.ownedAccount(ctx, userID, accountID)
	if err != nil {
		return err
	}
	if m.isProtected(account) {
		return accerrors.ErrProtectedAccount
	}

	unlock := m.lockUser(userID)
	defer unlock()

	for _, listener := range m.snapshotListeners() {
		listener.OnAccountRemoved(ctx, account)
	}

	m.dropConnection(accountID)

	if err := m.accounts.Delete(ctx, accountID); err != nil {
		return err
	}
	if err := m.vault.Delete(ctx, accountID); err != nil {
		m.logger.Warn().Err(err).Int64("account_id", accountID).Msg("failed to delete session")
	}

	if account.IsActive {
		m.promoteOldest(ctx, userID)
	}

	m.mu.Lock()
	delete(m.conns, accountID)
	m.mu.Unlock()
	m.refreshGauges()

	m.logger.Info().Int64("user_id", userID).Int64("account_id", accountID).Msg("account deleted")
	return nil
}

// Account returns an account by id
func (m *SessionManager) Account(ctx context.Context, accountID int64) (*entities.Account, error) {
	return m.accounts.Get(ctx, accountID)
}

// ListAccounts returns accounts of a user, oldest first
func (m *SessionManager) ListAccounts(ctx context.Context, userID int64) ([]*entities.Account, error) {
	return m.accounts.ListByUser(ctx, userID)
}

// ActiveAccount returns the active account of a user
func (m *SessionManager) ActiveAccount(ctx context.Context, userID int64) (*entities.Account, error) {
	accounts, err := m.accounts.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, account := range accounts {
		if account.IsActive {
			return account, nil
		}
	}
	return nil, accerrors.ErrAccountNotFound
}

// LoadAll registers every stored account without connecting it
func (m *SessionManager) LoadAll(ctx context.Context) (int, error) {
	accounts, err := m.accounts.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	for _, account := range accounts {
		m.connection(account.ID)
	}
	m.refreshGauges()
	return len(accounts), nil
}

// Shutdown disconnects all accounts and returns how many were connected
func (m *SessionManager) Shutdown(ctx context.Context) int {
	m.mu.RLock()
	ids := make([]int64, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	disconnected := 0
	for _, id := range ids {
		if m.IsConnected(id) {
			disconnected++
		}
		m.dropConnection(id)
	}
	m.refreshGauges()
	return disconnected
}

func (m *SessionManager) connection(accountID int64) *connection {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[accountID]
	if !ok {
		conn = &connection{}
		m.conns[accountID] = conn
	}
	return conn
}

// dropConnection disconnects and forgets the client, the entry stays registered
func (m *SessionManager) dropConnection(accountID int64) {
	m.mu.RLock()
	conn, ok := m.conns[accountID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	conn.mu.Lock()
	client := conn.client
	conn.client = nil
	conn.mu.Unlock()

	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()
		if err := client.Disconnect(ctx); err != nil {
			m.logger.Warn().Err(err).Int64("account_id", accountID).Msg("failed to disconnect account")
		}
	}
	m.refreshGauges()
}

func (m *SessionManager) ownedAccount(ctx context.Context, userID, accountID int64) (*entities.Account, error) {
	account, err := m.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.UserID != userID {
		return nil, accerrors.ErrNotOwned
	}
	return account, nil
}

func (m *SessionManager) isProtected(account *entities.Account) bool {
	return account.IsProtected || (m.cfg.ProtectedPhone != "" && utils.NormalizePhone(account.Phone) == m.cfg.ProtectedPhone)
}

func (m *SessionManager) promoteOldest(ctx context.Context, userID int64) {
	remaining, err := m.accounts.ListByUser(ctx, userID)
	if err != nil || len(remaining) == 0 {
		return
	}
	if err := m.accounts.SetActive(ctx, userID, remaining[0].ID); err != nil {
		m.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to promote account")
		return
	}
	m.logger.Info().Int64("user_id", userID).Int64("account_id", remaining[0].ID).Msg("oldest account promoted to active")
}

func (m *SessionManager) snapshotListeners() []deps.LifecycleListener {
	m.listenersMu.RLock()
	defer m.listenersMu.RUnlock()
	return append([]deps.LifecycleListener(nil), m.listeners...)
}

// lockUser serializes state changes of one user
func (m *SessionManager) lockUser(userID int64) func() {
	value, _ := m.userLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (m *SessionManager) refreshGauges() {
	connected, total := m.Stats()
	m.metrics.UpdateAccounts(connected, total)
}

// Stats returns how many registered accounts hold a live connection
func (m *SessionManager) Stats() (connected, total int) {
	m.mu.RLock()
	conns := make([]*connection, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	m.mu.RUnlock()

	for _, conn := range conns {
		// Skip busy entries instead of blocking on an in-flight connect
		if !conn.mu.TryRLock() {
			continue
		}
		if conn.client != nil && conn.client.IsConnected() {
			connected++
		}
		conn.mu.RUnlock()
	}
	return connected, len(conns)
}

// mapRemoteError converts a classified protocol error into a caller-facing error
func mapRemoteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	switch domain.KindOf(err) {
	case domain.KindInvalidPhone:
		return fmt.Errorf("%w: %w", accerrors.ErrInvalidPhone, err)
	case domain.KindInvalidCode:
		return fmt.Errorf("%w: %w", accerrors.ErrIncorrectCode, err)
	case domain.KindCodeExpired:
		return fmt.Errorf("%w: %w", accerrors.ErrCodeExpired, err)
	case domain.KindFloodWait:
		wait, _ := domain.FloodWaitOf(err)
		return fmt.Errorf("%w: %w", accerrors.RateLimited(wait), err)
	case domain.KindPeerFlood:
		return fmt.Errorf("%w: %w", accerrors.RateLimited(0), err)
	case domain.KindNetwork:
		return fmt.Errorf("%w: %w", accerrors.ErrConnection, err)
	case domain.KindSessionRevoked:
		return fmt.Errorf("%w: %w", accerrors.ErrSessionRevoked, err)
	default:
		return err
	}
}

var _ deps.SessionManager = (*SessionManager)(nil)
