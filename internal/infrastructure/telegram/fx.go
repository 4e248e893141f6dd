package telegram

import (
	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/Conte777/NewsFlow/services/broadcast-service/config"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/deps"
)

// Module provides Telegram protocol adapters for fx DI
var Module = fx.Module("telegram",
	fx.Provide(
		NewClientFactoryFx,
		NewLoginGatewayFx,
		NewSessionVaultFx,
	),
)

// NewClientFactoryFx creates the account client factory for fx DI
func NewClientFactoryFx(cfg *config.TelegramConfig, db *gorm.DB, logger zerolog.Logger) domain.ClientFactory {
	return NewClientFactory(db, cfg.APIID, cfg.APIHash, cfg.DeviceModel, cfg.ConnectTimeout, logger)
}

// NewLoginGatewayFx creates the login gateway for fx DI
func NewLoginGatewayFx(cfg *config.TelegramConfig, logger zerolog.Logger) deps.LoginGateway {
	return NewLoginGateway(LoginGatewayConfig{
		APIID:          cfg.APIID,
		APIHash:        cfg.APIHash,
		DeviceModel:    cfg.DeviceModel,
		ConnectTimeout: cfg.ConnectTimeout,
		Logger:         logger,
	})
}

// NewSessionVaultFx creates the session vault for fx DI
func NewSessionVaultFx(db *gorm.DB) deps.SessionVault {
	return NewSessionVault(db)
}
