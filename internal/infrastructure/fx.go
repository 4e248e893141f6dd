package infrastructure

import (
	"go.uber.org/fx"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/infrastructure/database"
	httpfx "github.com/Conte777/NewsFlow/services/broadcast-service/internal/infrastructure/http"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/infrastructure/kafka"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/infrastructure/kv"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/infrastructure/logger"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/infrastructure/metrics"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/infrastructure/notifybot"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/infrastructure/telegram"
)

// Module aggregates all infrastructure modules
var Module = fx.Module("infrastructure",
	logger.Module,
	database.Module, // Must be before telegram (telegram depends on *gorm.DB)
	metrics.Module,
	telegram.Module,
	kv.Module,
	kafka.Module,
	notifybot.Module,
	httpfx.Module,
)
