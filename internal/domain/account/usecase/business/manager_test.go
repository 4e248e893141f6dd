package business

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/deps"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/entities"
	accerrors "github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/errors"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/repository/memory"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/infrastructure/metrics"
	pkgerrors "github.com/Conte777/NewsFlow/services/broadcast-service/pkg/errors"
)

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.Advance(d)
	return ctx.Err()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeRemote implements entities.RemoteLogin
type fakeRemote struct {
	signInFunc   func(code string) (*domain.Profile, error)
	passwordFunc func(password string) (*domain.Profile, error)
	signInCalls  int32
	pwCalls      int32
	closed       int32
}

func (r *fakeRemote) SignIn(ctx context.Context, code string) (*domain.Profile, error) {
	atomic.AddInt32(&r.signInCalls, 1)
	if r.signInFunc != nil {
		return r.signInFunc(code)
	}
	return &domain.Profile{FirstName: "Test"}, nil
}

func (r *fakeRemote) CheckPassword(ctx context.Context, password string) (*domain.Profile, error) {
	atomic.AddInt32(&r.pwCalls, 1)
	if r.passwordFunc != nil {
		return r.passwordFunc(password)
	}
	return &domain.Profile{FirstName: "Test"}, nil
}

func (r *fakeRemote) SessionData(ctx context.Context) ([]byte, error) {
	return []byte("session"), nil
}

func (r *fakeRemote) Close() {
	atomic.AddInt32(&r.closed, 1)
}

// fakeGateway implements deps.LoginGateway
type fakeGateway struct {
	sendCodeFunc func(phone string) (entities.RemoteLogin, error)
	calls        int32
}

func (g *fakeGateway) SendCode(ctx context.Context, phone string) (entities.RemoteLogin, error) {
	atomic.AddInt32(&g.calls, 1)
	return g.sendCodeFunc(phone)
}

// fakeVault implements deps.SessionVault
type fakeVault struct {
	mu   sync.Mutex
	data map[int64][]byte
}

func newFakeVault() *fakeVault {
	return &fakeVault{data: make(map[int64][]byte)}
}

func (v *fakeVault) Store(ctx context.Context, accountID int64, data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.data[accountID] = data
	return nil
}

func (v *fakeVault) Delete(ctx context.Context, accountID int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.data, accountID)
	return nil
}

func (v *fakeVault) has(accountID int64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.data[accountID]
	return ok
}

// fakeClient implements domain.ProtocolClient
type fakeClient struct {
	mu          sync.Mutex
	connected   bool
	connectErr  error
	disconnects int
}

func (c *fakeClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectErr != nil {
		return c.connectErr
	}
	c.connected = true
	return nil
}

func (c *fakeClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnects++
	return nil
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Self(ctx context.Context) (*domain.Profile, error) {
	return &domain.Profile{}, nil
}

func (c *fakeClient) ListGroups(ctx context.Context) ([]domain.Group, error) {
	return nil, nil
}

func (c *fakeClient) SendMessage(ctx context.Context, peer domain.Peer, msg domain.Message) error {
	return nil
}

func (c *fakeClient) LatestSavedMessage(ctx context.Context) (*domain.Message, error) {
	return nil, nil
}

// fakeFactory implements domain.ClientFactory
type fakeFactory struct {
	mu      sync.Mutex
	clients map[int64]*fakeClient
}

func (f *fakeFactory) NewClient(accountID int64, phone string) (domain.ProtocolClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clients == nil {
		f.clients = make(map[int64]*fakeClient)
	}
	client, ok := f.clients[accountID]
	if !ok {
		client = &fakeClient{}
		f.clients[accountID] = client
	}
	return client, nil
}

// recordingListener implements deps.LifecycleListener
type recordingListener struct {
	revoked chan int64
	removed chan int64
}

func newRecordingListener() *recordingListener {
	return &recordingListener{revoked: make(chan int64, 4), removed: make(chan int64, 4)}
}

func (l *recordingListener) OnSessionRevoked(ctx context.Context, account *entities.Account) {
	l.revoked <- account.ID
}

func (l *recordingListener) OnAccountRemoved(ctx context.Context, account *entities.Account) {
	l.removed <- account.ID
}

type testEnv struct {
	manager  *SessionManager
	accounts deps.AccountStore
	vault    *fakeVault
	gateway  *fakeGateway
	factory  *fakeFactory
	clock    *fakeClock
	remote   *fakeRemote
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		accounts: memory.NewRepository(),
		vault:    newFakeVault(),
		factory:  &fakeFactory{},
		clock:    &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		remote:   &fakeRemote{},
	}
	env.gateway = &fakeGateway{sendCodeFunc: func(string) (entities.RemoteLogin, error) { return env.remote, nil }}

	logins := memory.NewAuthSessionStore(5*time.Minute, nil, zerolog.Nop())
	t.Cleanup(logins.Stop)

	env.manager = NewSessionManager(
		env.accounts, env.vault, env.gateway, logins, env.factory, env.clock,
		metrics.GetDefaultMetrics(),
		Config{CodeLength: 5, MaxPasswordAttempts: 3, PasswordCooldown: time.Minute, ProtectedPhone: "+7 (999) 000-00-00"},
		zerolog.Nop(),
	)
	return env
}

// link runs a full code login for phone
func (e *testEnv) link(t *testing.T, userID int64, phone string) *entities.Account {
	t.Helper()
	ctx := context.Background()

	_, err := e.manager.BeginLogin(ctx, userID, phone)
	require.NoError(t, err)
	res, err := e.manager.SubmitCode(ctx, userID, "12345")
	require.NoError(t, err)
	require.Equal(t, entities.StepLinked, res.Step)
	return res.Account
}

func TestBeginLogin_InvalidPhone(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.manager.BeginLogin(context.Background(), 1, "12ab")
	require.ErrorIs(t, err, accerrors.ErrInvalidPhone)
	assert.Equal(t, pkgerrors.CodeInvalidInput, pkgerrors.CodeOf(err))
	assert.Zero(t, atomic.LoadInt32(&env.gateway.calls), "no remote call on invalid input")
}

func TestBeginLogin_FloodWait(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.sendCodeFunc = func(string) (entities.RemoteLogin, error) {
		return nil, domain.NewFloodWaitError(30*time.Second, "FLOOD_WAIT", errors.New("flood"))
	}

	_, err := env.manager.BeginLogin(context.Background(), 1, "+79991234567")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeRateLimited, pkgerrors.CodeOf(err))

	var tooMany *pkgerrors.TooManyRequestsError
	require.ErrorAs(t, err, &tooMany)
	assert.Equal(t, 30*time.Second, tooMany.RetryAfter)
	assert.Equal(t, entities.StateIdle, env.manager.LoginState(1))
}

func TestSubmitCode_NoPendingAuth(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.manager.SubmitCode(context.Background(), 1, "12345")
	require.ErrorIs(t, err, accerrors.ErrNoPendingAuth)
	assert.Equal(t, pkgerrors.CodeNoPendingAuth, pkgerrors.CodeOf(err))
}

func TestSubmitCode_LinksFirstAccountAsActive(t *testing.T) {
	env := newTestEnv(t)

	first := env.link(t, 1, "+7 999 123-45-67")
	assert.True(t, first.IsActive)
	assert.Equal(t, "+79991234567", first.Phone)
	assert.True(t, env.vault.has(first.ID))
	assert.Equal(t, entities.StateIdle, env.manager.LoginState(1))
	assert.Equal(t, int32(1), atomic.LoadInt32(&env.remote.closed), "login client closed after linking")

	env.remote = &fakeRemote{}
	second := env.link(t, 1, "+79991234568")
	assert.False(t, second.IsActive)

	active, err := env.manager.ActiveAccount(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)
}

func TestSubmitCode_FormatCheckedLocally(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.manager.BeginLogin(ctx, 1, "+79991234567")
	require.NoError(t, err)

	for _, code := range []string{"1234", "123456", "12a45"} {
		_, err := env.manager.SubmitCode(ctx, 1, code)
		require.ErrorIs(t, err, accerrors.ErrInvalidCodeFormat, code)
	}
	assert.Zero(t, atomic.LoadInt32(&env.remote.signInCalls))

	// Separators are stripped
	res, err := env.manager.SubmitCode(ctx, 1, "1 2-3 4 5")
	require.NoError(t, err)
	assert.Equal(t, entities.StepLinked, res.Step)
}

func TestSubmitCode_IncorrectIsReenterable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	calls := 0
	env.remote.signInFunc = func(code string) (*domain.Profile, error) {
		calls++
		if calls == 1 {
			return nil, domain.NewProtocolError(domain.KindInvalidCode, "PHONE_CODE_INVALID", errors.New("bad"))
		}
		return &domain.Profile{FirstName: "A"}, nil
	}

	_, err := env.manager.BeginLogin(ctx, 1, "+79991234567")
	require.NoError(t, err)

	_, err = env.manager.SubmitCode(ctx, 1, "11111")
	require.ErrorIs(t, err, accerrors.ErrIncorrectCode)
	assert.Equal(t, entities.StateAwaitingCode, env.manager.LoginState(1))

	res, err := env.manager.SubmitCode(ctx, 1, "22222")
	require.NoError(t, err)
	assert.Equal(t, entities.StepLinked, res.Step)
}

func TestSubmitCode_Expired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.remote.signInFunc = func(string) (*domain.Profile, error) {
		return nil, domain.NewProtocolError(domain.KindCodeExpired, "PHONE_CODE_EXPIRED", errors.New("expired"))
	}

	_, err := env.manager.BeginLogin(ctx, 1, "+79991234567")
	require.NoError(t, err)

	_, err = env.manager.SubmitCode(ctx, 1, "12345")
	require.ErrorIs(t, err, accerrors.ErrCodeExpired)
	assert.Equal(t, entities.StateIdle, env.manager.LoginState(1))
}

func TestSubmitPassword_CooldownAfterThreeFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.remote.signInFunc = func(string) (*domain.Profile, error) {
		return nil, domain.NewProtocolError(domain.KindPasswordRequired, "SESSION_PASSWORD_NEEDED", errors.New("2fa"))
	}
	env.remote.passwordFunc = func(pw string) (*domain.Profile, error) {
		if pw == "right" {
			return &domain.Profile{FirstName: "A"}, nil
		}
		return nil, domain.NewProtocolError(domain.KindInvalidPassword, "PASSWORD_HASH_INVALID", errors.New("bad"))
	}

	_, err := env.manager.BeginLogin(ctx, 1, "+79991234567")
	require.NoError(t, err)

	res, err := env.manager.SubmitCode(ctx, 1, "12345")
	require.NoError(t, err, "password demand is a signal, not an error")
	assert.Equal(t, entities.StepPasswordRequired, res.Step)
	assert.Equal(t, entities.StateAwaitingPassword, env.manager.LoginState(1))

	_, err = env.manager.SubmitPassword(ctx, 1, "wrong")
	assert.Equal(t, pkgerrors.CodeAuthFailed, pkgerrors.CodeOf(err))
	assert.Contains(t, err.Error(), "2 attempts left")

	_, err = env.manager.SubmitPassword(ctx, 1, "wrong")
	assert.Equal(t, pkgerrors.CodeAuthFailed, pkgerrors.CodeOf(err))

	_, err = env.manager.SubmitPassword(ctx, 1, "wrong")
	assert.Equal(t, pkgerrors.CodeCooldown, pkgerrors.CodeOf(err))
	assert.Equal(t, entities.StateCooldownLocked, env.manager.LoginState(1))

	// Fourth attempt before expiry never reaches the remote side
	env.clock.Advance(30 * time.Second)
	_, err = env.manager.SubmitPassword(ctx, 1, "right")
	require.Equal(t, pkgerrors.CodeCooldown, pkgerrors.CodeOf(err))
	var tooMany *pkgerrors.TooManyRequestsError
	require.ErrorAs(t, err, &tooMany)
	assert.Equal(t, 30*time.Second, tooMany.RetryAfter)
	assert.Equal(t, int32(3), atomic.LoadInt32(&env.remote.pwCalls))

	env.clock.Advance(31 * time.Second)
	assert.Equal(t, entities.StateAwaitingPassword, env.manager.LoginState(1))

	res, err = env.manager.SubmitPassword(ctx, 1, "right")
	require.NoError(t, err)
	assert.Equal(t, entities.StepLinked, res.Step)
}

func TestLoginState_ConcurrentWithSubmissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.remote.signInFunc = func(string) (*domain.Profile, error) {
		return nil, domain.NewProtocolError(domain.KindPasswordRequired, "SESSION_PASSWORD_NEEDED", errors.New("2fa"))
	}
	env.remote.passwordFunc = func(string) (*domain.Profile, error) {
		return nil, domain.NewProtocolError(domain.KindInvalidPassword, "PASSWORD_HASH_INVALID", errors.New("bad"))
	}

	_, err := env.manager.BeginLogin(ctx, 1, "+79991234567")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			_, _ = env.manager.SubmitCode(ctx, 1, "12345")
			_, _ = env.manager.SubmitPassword(ctx, 1, "wrong")
		}
	}()

	valid := map[entities.LoginState]bool{
		entities.StateAwaitingCode:     true,
		entities.StateAwaitingPassword: true,
		entities.StateCooldownLocked:   true,
	}
	for i := 0; i < 200; i++ {
		state := env.manager.LoginState(1)
		require.True(t, valid[state], "unexpected state %q", state)
	}
	<-done

	assert.Equal(t, entities.StateCooldownLocked, env.manager.LoginState(1))
}

func TestSubmitPassword_WrongState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.manager.SubmitPassword(ctx, 1, "pw")
	require.ErrorIs(t, err, accerrors.ErrNoPendingAuth)

	_, err = env.manager.BeginLogin(ctx, 1, "+79991234567")
	require.NoError(t, err)
	_, err = env.manager.SubmitPassword(ctx, 1, "pw")
	require.ErrorIs(t, err, accerrors.ErrCodeExpected)
	assert.Zero(t, atomic.LoadInt32(&env.remote.pwCalls))
}

func TestBeginLogin_LastWriteWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.remote
	_, err := env.manager.BeginLogin(ctx, 1, "+79991234567")
	require.NoError(t, err)

	env.remote = &fakeRemote{}
	_, err = env.manager.BeginLogin(ctx, 1, "+79991234568")
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&first.closed), "replaced login is closed")

	res, err := env.manager.SubmitCode(ctx, 1, "12345")
	require.NoError(t, err)
	assert.Equal(t, "+79991234568", res.Account.Phone)
}

func TestCancelLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.manager.CancelLogin(ctx, 1) // no-op without a login

	_, err := env.manager.BeginLogin(ctx, 1, "+79991234567")
	require.NoError(t, err)
	env.manager.CancelLogin(ctx, 1)

	assert.Equal(t, entities.StateIdle, env.manager.LoginState(1))
	assert.Equal(t, int32(1), atomic.LoadInt32(&env.remote.closed))

	accounts, err := env.manager.ListAccounts(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestFinalize_LinkedByAnotherUser(t *testing.T) {
	env := newTestEnv(t)
	env.link(t, 1, "+79991234567")

	env.remote = &fakeRemote{}
	_, err := env.manager.BeginLogin(context.Background(), 2, "+79991234567")
	require.NoError(t, err)
	_, err = env.manager.SubmitCode(context.Background(), 2, "12345")
	require.ErrorIs(t, err, accerrors.ErrLinkedElsewhere)
}

func TestDetectRevocation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	listener := newRecordingListener()
	env.manager.Subscribe(listener)

	account := env.link(t, 1, "+79991234567")
	_, err := env.manager.Connect(ctx, account.ID)
	require.NoError(t, err)
	require.True(t, env.manager.IsConnected(account.ID))

	assert.False(t, env.manager.DetectRevocation(ctx, account.ID, domain.NewProtocolError(domain.KindNetwork, "", errors.New("eof"))))
	assert.True(t, env.manager.IsConnected(account.ID), "transient errors keep the connection")

	revoked := domain.NewProtocolError(domain.KindSessionRevoked, "AUTH_KEY_UNREGISTERED", errors.New("revoked"))
	assert.True(t, env.manager.DetectRevocation(ctx, account.ID, revoked))

	select {
	case id := <-listener.revoked:
		assert.Equal(t, account.ID, id)
	case <-time.After(time.Second):
		t.Fatal("listener not notified")
	}

	assert.False(t, env.manager.IsConnected(account.ID))
	assert.False(t, env.vault.has(account.ID))

	stored, err := env.manager.Account(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, stored.Revoked)

	_, err = env.manager.Connect(ctx, account.ID)
	require.ErrorIs(t, err, accerrors.ErrSessionRevoked)
	assert.True(t, domain.IsSessionRevoked(err))

	// Re-linking clears the revoked state
	env.remote = &fakeRemote{}
	relinked := env.link(t, 1, "+79991234567")
	assert.False(t, relinked.Revoked)
	assert.Equal(t, account.ID, relinked.ID)
}

func TestWithClient_RevocationFromCall(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	listener := newRecordingListener()
	env.manager.Subscribe(listener)

	account := env.link(t, 1, "+79991234567")

	err := env.manager.WithClient(ctx, account.ID, func(ctx context.Context, client domain.ProtocolClient) error {
		return domain.NewProtocolError(domain.KindSessionRevoked, "SESSION_REVOKED", errors.New("revoked"))
	})
	require.True(t, domain.IsSessionRevoked(err))

	select {
	case <-listener.revoked:
	case <-time.After(time.Second):
		t.Fatal("listener not notified")
	}
	assert.False(t, env.manager.IsConnected(account.ID))
}

func TestConnect_RevokedOnConnect(t *testing.T) {
	env := newTestEnv(t)
	account := env.link(t, 1, "+79991234567")

	client, _ := env.factory.NewClient(account.ID, account.Phone)
	client.(*fakeClient).connectErr = domain.NewProtocolError(domain.KindSessionRevoked, "AUTH_KEY_UNREGISTERED", domain.ErrNotAuthorized)

	_, err := env.manager.Connect(context.Background(), account.ID)
	require.ErrorIs(t, err, accerrors.ErrSessionRevoked)

	stored, err := env.manager.Account(context.Background(), account.ID)
	require.NoError(t, err)
	assert.True(t, stored.Revoked)
}

func TestSwitchActive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.link(t, 1, "+79991234567")
	env.remote = &fakeRemote{}
	second := env.link(t, 1, "+79991234568")
	env.remote = &fakeRemote{}
	foreign := env.link(t, 2, "+79991234569")

	_, err := env.manager.SwitchActive(ctx, 1, foreign.ID)
	require.ErrorIs(t, err, accerrors.ErrNotOwned)

	_, err = env.manager.SwitchActive(ctx, 1, second.ID)
	require.NoError(t, err)

	accounts, err := env.manager.ListAccounts(ctx, 1)
	require.NoError(t, err)
	active := 0
	for _, a := range accounts {
		if a.IsActive {
			active++
			assert.Equal(t, second.ID, a.ID)
		}
	}
	assert.Equal(t, 1, active, "exactly one active account")
	assert.NotEqual(t, first.ID, second.ID)
}

func TestDeleteAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	listener := newRecordingListener()
	env.manager.Subscribe(listener)

	first := env.link(t, 1, "+79991234567")
	env.remote = &fakeRemote{}
	second := env.link(t, 1, "+79991234568")

	_, err := env.manager.Connect(ctx, first.ID)
	require.NoError(t, err)

	require.ErrorIs(t, env.manager.DeleteAccount(ctx, 2, first.ID), accerrors.ErrNotOwned)

	require.NoError(t, env.manager.DeleteAccount(ctx, 1, first.ID))
	assert.Equal(t, first.ID, <-listener.removed, "listener called before removal")
	assert.False(t, env.manager.IsConnected(first.ID))
	assert.False(t, env.vault.has(first.ID))

	active, err := env.manager.ActiveAccount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID, "oldest remaining account promoted")

	_, err = env.manager.Account(ctx, first.ID)
	require.ErrorIs(t, err, accerrors.ErrAccountNotFound)
}

func TestDeleteAccount_Protected(t *testing.T) {
	env := newTestEnv(t)

	account := env.link(t, 1, "+79990000000")
	assert.True(t, account.IsProtected)

	err := env.manager.DeleteAccount(context.Background(), 1, account.ID)
	require.ErrorIs(t, err, accerrors.ErrProtectedAccount)
	assert.Equal(t, pkgerrors.CodeProtected, pkgerrors.CodeOf(err))
}

func TestLoadAllAndShutdown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	account := env.link(t, 1, "+79991234567")
	_, err := env.manager.Connect(ctx, account.ID)
	require.NoError(t, err)

	n, err := env.manager.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, 1, env.manager.Shutdown(ctx))
	assert.False(t, env.manager.IsConnected(account.ID))
}
