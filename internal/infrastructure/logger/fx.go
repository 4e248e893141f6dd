package logger

import (
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Conte777/NewsFlow/services/broadcast-service/config"
)

// Module provides the zerolog logger shared by every component
var Module = fx.Module("logger",
	fx.Provide(NewLogger),
)

// NewLogger creates the logger tagged with the service name
func NewLogger(cfg *config.LoggingConfig, service *config.ServiceConfig) zerolog.Logger {
	return New(cfg.Level, cfg.Format, service.Name)
}
