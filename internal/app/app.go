package app

import (
	"context"

	"go.uber.org/fx"

	"github.com/Conte777/NewsFlow/services/broadcast-service/config"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/infrastructure"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/utils"
)

// CreateApp creates the fx application options
func CreateApp() fx.Option {
	return fx.Options(
		fx.Provide(
			config.Out,
			context.Background,
			utils.NewRealClock,
		),
		infrastructure.Module,
		// Domain modules
		account.Module,
		broadcast.Module, // Must be after account.Module (borrows the session manager)
	)
}
