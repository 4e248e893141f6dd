package database

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"gorm.io/gorm"
)

// MigrationState is the schema version after a migration run
type MigrationState struct {
	Version uint
	Dirty   bool
	Applied bool
}

// Migrate brings the schema at source up to date
func Migrate(db *gorm.DB, source, dbName string) (MigrationState, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return MigrationState{}, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{DatabaseName: dbName})
	if err != nil {
		return MigrationState{}, fmt.Errorf("failed to create migrate driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(source, dbName, driver)
	if err != nil {
		return MigrationState{}, fmt.Errorf("failed to open migrations at %s: %w", source, err)
	}

	state := MigrationState{Applied: true}
	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return state, fmt.Errorf("migration failed: %w", err)
		}
		state.Applied = false
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return state, fmt.Errorf("failed to read schema version: %w", err)
	}
	state.Version = version
	state.Dirty = dirty
	return state, nil
}
