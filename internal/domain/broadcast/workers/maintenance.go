// Package workers runs periodic broadcast housekeeping.
package workers

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/deps"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/utils"
)

const (
	// Midnight in the broadcast timezone
	dailyResetSpec = "0 0 * * *"
	pruneSpec      = "@every 1h"
	jobTimeout     = time.Minute
)

// MaintenanceConfig holds housekeeping settings
type MaintenanceConfig struct {
	Location *time.Location
	// StatsRetention is how long cycle statistics are kept, 0 keeps them forever
	StatsRetention time.Duration
}

// Maintenance resets daily counters at the day boundary and prunes old cycle statistics
type Maintenance struct {
	settings deps.SettingsStore
	cycles   deps.CycleStore
	clock    utils.Clock
	cfg      MaintenanceConfig
	logger   zerolog.Logger

	cron *cron.Cron
}

// NewMaintenance creates the housekeeping worker
func NewMaintenance(settings deps.SettingsStore, cycles deps.CycleStore, clock utils.Clock, cfg MaintenanceConfig, logger zerolog.Logger) *Maintenance {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	logger = logger.With().Str("component", "broadcast_maintenance").Logger()
	return &Maintenance{
		settings: settings,
		cycles:   cycles,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger})),
		),
	}
}

// Start registers the jobs and catches up on a reset missed while the service was down
func (m *Maintenance) Start(ctx context.Context) error {
	if _, err := m.cron.AddFunc(dailyResetSpec, m.runWithTimeout(m.ResetDailyCounters)); err != nil {
		return err
	}
	if m.cfg.StatsRetention > 0 {
		if _, err := m.cron.AddFunc(pruneSpec, m.runWithTimeout(m.PruneStats)); err != nil {
			return err
		}
	}

	if err := m.ResetDailyCounters(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("initial daily reset failed")
	}

	m.cron.Start()
	m.logger.Info().
		Str("timezone", m.cfg.Location.String()).
		Dur("stats_retention", m.cfg.StatsRetention).
		Msg("maintenance worker started")
	return nil
}

// Stop waits for running jobs or ctx
func (m *Maintenance) Stop(ctx context.Context) error {
	done := m.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ResetDailyCounters zeroes counters that belong to a previous day
func (m *Maintenance) ResetDailyCounters(ctx context.Context) error {
	day := utils.DayKey(m.clock.Now(), m.cfg.Location)
	n, err := m.settings.ResetDaily(ctx, day)
	if err != nil {
		return err
	}
	if n > 0 {
		m.logger.Info().Str("day", day).Int64("accounts", n).Msg("daily counters reset")
	}
	return nil
}

// PruneStats deletes cycle statistics older than the retention
func (m *Maintenance) PruneStats(ctx context.Context) error {
	if m.cfg.StatsRetention <= 0 {
		return nil
	}
	n, err := m.cycles.Prune(ctx, m.clock.Now().Add(-m.cfg.StatsRetention))
	if err != nil {
		return err
	}
	if n > 0 {
		m.logger.Info().Int64("deleted", n).Msg("old cycle stats pruned")
	}
	return nil
}

func (m *Maintenance) runWithTimeout(fn func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			m.logger.Error().Err(err).Msg("maintenance job failed")
		}
	}
}

// Entries returns how many jobs are scheduled
func (m *Maintenance) Entries() int {
	return len(m.cron.Entries())
}

// cronLogger adapts zerolog to cron.Logger
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
