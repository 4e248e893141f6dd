package account

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/Conte777/NewsFlow/services/broadcast-service/config"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain"
	accounthttp "github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/delivery/http"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/deps"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/entities"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/repository/memory"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/repository/postgres"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/usecase/business"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/infrastructure/http/server"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/infrastructure/metrics"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/utils"
)

// Module provides account domain components for fx DI
var Module = fx.Module("account",
	fx.Provide(
		NewAccountStoreFx,
		NewAuthSessionStoreFx,
		NewSessionManagerFx,
		accounthttp.NewHealthHandler,
		accounthttp.NewAccountHandler,
		accounthttp.NewRouter,
	),
	fx.Invoke(RegisterRoutes),
)

// NewAccountStoreFx creates the account store for fx DI
func NewAccountStoreFx(db *gorm.DB) deps.AccountStore {
	return postgres.NewRepository(db)
}

// NewAuthSessionStoreFx creates the pending login store for fx DI
func NewAuthSessionStoreFx(lc fx.Lifecycle, cfg *config.AuthConfig, m *metrics.Metrics, logger zerolog.Logger) deps.AuthSessionStore {
	store := memory.NewAuthSessionStore(cfg.SessionTTL, func(s *entities.AuthSession) {
		m.RecordLoginExpired()
		logger.Info().
			Int64("user_id", s.UserID).
			Str("phone", utils.MaskPhoneNumber(s.Phone)).
			Msg("pending login expired")
	}, logger)

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			store.Stop()
			return nil
		},
	})

	return store
}

// SessionManagerParams defines dependencies of the session manager
type SessionManagerParams struct {
	fx.In

	Lifecycle   fx.Lifecycle
	Accounts    deps.AccountStore
	Vault       deps.SessionVault
	Gateway     deps.LoginGateway
	Logins      deps.AuthSessionStore
	Factory     domain.ClientFactory
	Clock       utils.Clock
	Metrics     *metrics.Metrics
	AuthCfg     *config.AuthConfig
	TelegramCfg *config.TelegramConfig
	Logger      zerolog.Logger
}

// NewSessionManagerFx creates the session manager and hooks startup loading and shutdown
func NewSessionManagerFx(p SessionManagerParams) deps.SessionManager {
	manager := business.NewSessionManager(
		p.Accounts,
		p.Vault,
		p.Gateway,
		p.Logins,
		p.Factory,
		p.Clock,
		p.Metrics,
		business.Config{
			CodeLength:          p.AuthCfg.CodeLength,
			MaxPasswordAttempts: p.AuthCfg.MaxPasswordAttempts,
			PasswordCooldown:    p.AuthCfg.PasswordCooldown,
			ProtectedPhone:      p.TelegramCfg.ProtectedPhone,
		},
		p.Logger,
	)

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			n, err := manager.LoadAll(ctx)
			if err != nil {
				return err
			}
			p.Logger.Info().Int("accounts", n).Msg("linked accounts registered")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			n := manager.Shutdown(ctx)
			p.Logger.Info().Int("disconnected", n).Msg("session manager shutdown completed")
			return nil
		},
	})

	return manager
}

// RegisterRoutes registers account HTTP routes on the server
func RegisterRoutes(srv *server.Server, router *accounthttp.Router) {
	router.RegisterRoutes(srv.Router)
}
