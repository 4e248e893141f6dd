package notifybot

import (
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Conte777/NewsFlow/services/broadcast-service/config"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/deps"
	"github.com/Conte777/NewsFlow/services/broadcast-service/pkg/httputil"
)

// Module provides the notification bot sink for fx DI
var Module = fx.Module("notifybot",
	fx.Provide(NewSinkFx),
)

// SinkOut contributes the bot sink to the notifier and health groups, both empty without a token
type SinkOut struct {
	fx.Out

	Sinks     []deps.Sink               `group:"broadcast_sinks,flatten"`
	Reporters []httputil.HealthReporter `group:"health,flatten"`
}

// NewSinkFx creates the bot sink when a token is configured
func NewSinkFx(cfg *config.BotConfig, logger zerolog.Logger) (SinkOut, error) {
	if cfg.Token == "" {
		logger.Info().Msg("Notification bot token not configured, bot sink disabled")
		return SinkOut{}, nil
	}

	sink, err := New(cfg.Token, logger)
	if err != nil {
		return SinkOut{}, err
	}

	return SinkOut{
		Sinks:     []deps.Sink{sink},
		Reporters: []httputil.HealthReporter{sink},
	}, nil
}
