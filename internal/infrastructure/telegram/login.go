package telegram

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/entities"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/utils"
)

// LoginGateway starts phone logins on temporary clients with in-memory sessions
type LoginGateway struct {
	apiID          int
	apiHash        string
	device         telegram.DeviceConfig
	connectTimeout time.Duration
	logger         zerolog.Logger
}

// LoginGatewayConfig holds configuration for LoginGateway
type LoginGatewayConfig struct {
	APIID          int
	APIHash        string
	DeviceModel    string
	ConnectTimeout time.Duration
	Logger         zerolog.Logger
}

// NewLoginGateway creates a new login gateway
func NewLoginGateway(cfg LoginGatewayConfig) *LoginGateway {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	return &LoginGateway{
		apiID:          cfg.APIID,
		apiHash:        cfg.APIHash,
		device:         telegram.DeviceConfig{DeviceModel: cfg.DeviceModel},
		connectTimeout: cfg.ConnectTimeout,
		logger:         cfg.Logger.With().Str("component", "login_gateway").Logger(),
	}
}

// SendCode connects a temporary client and requests a verification code
func (g *LoginGateway) SendCode(ctx context.Context, phone string) (entities.RemoteLogin, error) {
	storage := NewMemorySessionStorage()
	client := telegram.NewClient(g.apiID, g.apiHash, telegram.Options{
		SessionStorage: storage,
		Device:         g.device,
		NoUpdates:      true,
	})

	runCtx, cancel := context.WithCancel(context.Background())
	login := &pendingLogin{
		client:  client,
		storage: storage,
		phone:   phone,
		cancel:  cancel,
		runDone: make(chan struct{}),
		logger:  g.logger.With().Str("phone", utils.MaskPhoneNumber(phone)).Logger(),
	}

	ready := make(chan struct{})
	errChan := make(chan error, 1)

	go func() {
		defer close(login.runDone)
		errChan <- client.Run(runCtx, func(ctx context.Context) error {
			close(ready)
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	timer := time.NewTimer(g.connectTimeout)
	defer timer.Stop()

	select {
	case <-ready:
	case err := <-errChan:
		login.Close()
		if err == nil {
			err = domain.ErrNotConnected
		}
		return nil, classify(err)
	case <-timer.C:
		login.Close()
		return nil, classify(fmt.Errorf("connect timeout after %s: %w", g.connectTimeout, domain.ErrNotConnected))
	case <-ctx.Done():
		login.Close()
		return nil, ctx.Err()
	}

	sent, err := client.Auth().SendCode(ctx, phone, auth.SendCodeOptions{})
	if err != nil {
		login.Close()
		login.logger.Warn().Err(err).Msg("failed to send code")
		return nil, classify(err)
	}

	code, ok := sent.(*tg.AuthSentCode)
	if !ok {
		login.Close()
		return nil, classify(fmt.Errorf("unexpected sent code type %T", sent))
	}
	login.codeHash = code.PhoneCodeHash

	login.logger.Info().Msg("verification code sent")
	return login, nil
}

// pendingLogin is a login in progress bound to a temporary client
type pendingLogin struct {
	client   *telegram.Client
	storage  *MemorySessionStorage
	phone    string
	codeHash string

	cancel    context.CancelFunc
	runDone   chan struct{}
	closeOnce sync.Once

	logger zerolog.Logger
}

// SignIn submits the verification code
func (p *pendingLogin) SignIn(ctx context.Context, code string) (*domain.Profile, error) {
	a, err := p.client.Auth().SignIn(ctx, p.phone, code, p.codeHash)
	if err != nil {
		return nil, classify(err)
	}
	return p.profile(ctx, a)
}

// CheckPassword submits the 2FA password
func (p *pendingLogin) CheckPassword(ctx context.Context, password string) (*domain.Profile, error) {
	a, err := p.client.Auth().Password(ctx, password)
	if err != nil {
		return nil, classify(err)
	}
	return p.profile(ctx, a)
}

func (p *pendingLogin) profile(ctx context.Context, a *tg.AuthAuthorization) (*domain.Profile, error) {
	user, ok := a.User.(*tg.User)
	if !ok {
		return nil, classify(fmt.Errorf("unexpected user type %T", a.User))
	}
	profile := profileFromUser(user)

	// Bio is informational here, a failure must not undo the login
	if full, err := p.client.API().UsersGetFullUser(ctx, &tg.InputUserSelf{}); err == nil {
		profile.About = full.FullUser.About
	} else {
		p.logger.Debug().Err(err).Msg("failed to load bio")
	}
	return profile, nil
}

// SessionData exports the authorized session
func (p *pendingLogin) SessionData(ctx context.Context) ([]byte, error) {
	data, err := p.storage.LoadSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export session: %w", err)
	}
	return data, nil
}

// Close stops the temporary client
func (p *pendingLogin) Close() {
	p.closeOnce.Do(func() {
		p.cancel()
		select {
		case <-p.runDone:
		case <-time.After(10 * time.Second):
			p.logger.Warn().Msg("timeout waiting for login client shutdown")
		}
	})
}
