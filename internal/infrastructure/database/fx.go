package database

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/Conte777/NewsFlow/services/broadcast-service/config"
)

// Module provides the postgres connection for fx DI
var Module = fx.Module("database",
	fx.Provide(NewPostgresDBFx),
)

// NewPostgresDBFx connects to postgres and migrates the broadcast schema
//
// A failed migration only stops startup when StrictMigrations is set, so a
// replica started against an already migrated schema still comes up.
func NewPostgresDBFx(lc fx.Lifecycle, cfg *config.DatabaseConfig, logger zerolog.Logger) (*gorm.DB, error) {
	log := logger.With().Str("component", "database").Str("database", cfg.DBName).Logger()

	db, err := NewPostgresDB(cfg)
	if err != nil {
		return nil, err
	}

	state, err := Migrate(db, cfg.MigrationsPath, cfg.DBName)
	switch {
	case err != nil && cfg.StrictMigrations:
		closeDB(db, log)
		return nil, err
	case err != nil:
		log.Warn().Err(err).Str("source", cfg.MigrationsPath).Msg("schema migration failed, continuing")
	case state.Dirty:
		log.Warn().Uint("version", state.Version).Msg("schema is dirty, manual repair required")
	default:
		log.Info().Uint("version", state.Version).Bool("applied", state.Applied).Msg("schema is up to date")
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return closeDB(db, log)
		},
	})

	log.Info().Str("host", cfg.Host).Str("port", cfg.Port).Msg("connected to postgres")
	return db, nil
}

func closeDB(db *gorm.DB, log zerolog.Logger) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	log.Info().Msg("closing postgres connection")
	return sqlDB.Close()
}
