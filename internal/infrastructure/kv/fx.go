package kv

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Conte777/NewsFlow/services/broadcast-service/config"
	"github.com/Conte777/NewsFlow/services/broadcast-service/pkg/httputil"
)

// Module provides the Redis client for fx DI, the client is nil when Redis is not configured
var Module = fx.Module("kv",
	fx.Provide(NewClientFx),
)

// ClientOut provides the client and its health probe
type ClientOut struct {
	fx.Out

	Client    *redis.Client
	Reporters []httputil.HealthReporter `group:"health,flatten"`
}

// NewClientFx connects to Redis when an address is configured
func NewClientFx(lc fx.Lifecycle, cfg *config.RedisConfig, logger zerolog.Logger) (ClientOut, error) {
	if cfg.Addr == "" {
		logger.Info().Msg("Redis address not configured, job leases stay local")
		return ClientOut{}, nil
	}

	client, err := NewClient(context.Background(), cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		return ClientOut{}, err
	}
	health := NewHealth(client, 0, logger)

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			health.Start()
			return nil
		},
		OnStop: func(_ context.Context) error {
			health.Stop()
			return client.Close()
		},
	})

	logger.Info().Str("addr", cfg.Addr).Msg("Redis client connected")
	return ClientOut{Client: client, Reporters: []httputil.HealthReporter{health}}, nil
}
