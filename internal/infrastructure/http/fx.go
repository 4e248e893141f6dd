package http

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Conte777/NewsFlow/services/broadcast-service/config"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/infrastructure/http/server"
	pkgerrors "github.com/Conte777/NewsFlow/services/broadcast-service/pkg/errors"
)

// Module provides the HTTP server and the error mapper for fx DI
var Module = fx.Module("http",
	fx.Provide(
		NewServerFx,
		pkgerrors.NewMapper,
	),
)

// NewServerFx creates the HTTP server, routes are registered by the domain modules before OnStart
func NewServerFx(lc fx.Lifecycle, cfg *config.ServiceConfig, logger zerolog.Logger) *server.Server {
	srv := server.NewServer(server.Options{
		Name:            cfg.Name,
		Port:            cfg.Port,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)
	srv.RegisterMetrics()

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return srv.Start()
		},
		OnStop: srv.Shutdown,
	})

	return srv
}
