package broadcast

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Conte777/NewsFlow/services/broadcast-service/config"
	accdeps "github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/deps"
	broadcasthttp "github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/delivery/http"
	broadcastkafka "github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/delivery/kafka"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/deps"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/directory"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/gate"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/governor"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/notifier"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/registry"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/repository/postgres"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/usecase/business"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/workers"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/infrastructure/http/server"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/infrastructure/metrics"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/utils"
)

// Module provides broadcast domain components for fx DI
var Module = fx.Module("broadcast",
	fx.Provide(
		postgres.NewSettingsRepository,
		postgres.NewContentRepository,
		postgres.NewGroupRepository,
		postgres.NewCycleRepository,
		postgres.NewPremiumRepository,
		NewSessionsFx,
		NewGovernorPoolFx,
		NewJobRegistryFx,
		NewGroupDirectoryFx,
		NewTagGateFx,
		NewNotifierFx,
		NewSchedulerFx,
		NewMaintenanceFx,
		broadcasthttp.NewBroadcastHandler,
		broadcasthttp.NewRouter,
		broadcastkafka.NewCommandHandler,
	),
	fx.Invoke(
		RegisterMaintenance,
		RegisterRoutes,
	),
)

// NewSessionsFx exposes the session manager to the broadcast domain
func NewSessionsFx(manager accdeps.SessionManager) deps.Sessions {
	return manager
}

// NewGovernorPoolFx creates the per-account rate governors
func NewGovernorPoolFx(cfg *config.BroadcastConfig, clock utils.Clock, m *metrics.Metrics, logger zerolog.Logger) *governor.Pool {
	return governor.NewPool(cfg.AccountRate, cfg.AccountBurst, clock, m, logger)
}

// JobRegistryParams defines dependencies of the job registry
type JobRegistryParams struct {
	fx.In

	Redis  *redis.Client `optional:"true"`
	Cfg    *config.RedisConfig
	Logger zerolog.Logger
}

// NewJobRegistryFx creates the local registry, backed by a Redis lease when Redis is available
func NewJobRegistryFx(p JobRegistryParams) deps.JobRegistry {
	local := registry.NewMemoryRegistry()
	if p.Redis == nil {
		return local
	}
	p.Logger.Info().Dur("ttl", p.Cfg.LeaseTTL).Msg("broadcast jobs leased through redis")
	return registry.NewLeaseRegistry(local, p.Redis, p.Cfg.LeaseTTL, p.Logger)
}

// NewGroupDirectoryFx creates the group directory
func NewGroupDirectoryFx(
	groups deps.GroupStore,
	sessions deps.Sessions,
	clock utils.Clock,
	cfg *config.BroadcastConfig,
	logger zerolog.Logger,
) deps.GroupDirectory {
	return directory.New(groups, sessions, clock, directory.Config{
		SyncInterval:   cfg.GroupSyncInterval,
		BlacklistAfter: cfg.AutoBlacklistAfter,
	}, logger)
}

// NewTagGateFx creates the profile tag gate
func NewTagGateFx(
	premium deps.PremiumChecker,
	sessions deps.Sessions,
	clock utils.Clock,
	cfg *config.BroadcastConfig,
	logger zerolog.Logger,
) deps.TagGate {
	return gate.New(cfg.RequiredTags, premium, sessions, clock, logger)
}

// NotifierParams defines dependencies of the notifier
type NotifierParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Sinks     []deps.Sink `group:"broadcast_sinks"`
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger
}

// NewNotifierFx creates the event dispatcher over every configured sink
func NewNotifierFx(p NotifierParams) deps.Notifier {
	dispatcher := notifier.NewDispatcher(p.Sinks, notifier.Config{}, p.Metrics, p.Logger)

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			dispatcher.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return dispatcher.Close(ctx)
		},
	})

	p.Logger.Info().Int("sinks", len(p.Sinks)).Msg("broadcast notifier configured")
	return dispatcher
}

// SchedulerParams defines dependencies of the scheduler
type SchedulerParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Manager   accdeps.SessionManager
	Sessions  deps.Sessions
	Settings  deps.SettingsStore
	Content   deps.ContentStore
	Directory deps.GroupDirectory
	Cycles    deps.CycleStore
	Registry  deps.JobRegistry
	Gate      deps.TagGate
	Notifier  deps.Notifier
	Governors *governor.Pool
	Clock     utils.Clock
	Metrics   *metrics.Metrics
	Cfg       *config.BroadcastConfig
	Logger    zerolog.Logger
}

// NewSchedulerFx creates the scheduler and subscribes it to account lifecycle events
func NewSchedulerFx(p SchedulerParams) deps.Scheduler {
	scheduler := business.NewScheduler(business.Params{
		Sessions:  p.Sessions,
		Settings:  p.Settings,
		Content:   p.Content,
		Directory: p.Directory,
		Cycles:    p.Cycles,
		Registry:  p.Registry,
		Gate:      p.Gate,
		Notifier:  p.Notifier,
		Governors: p.Governors,
		Clock:     p.Clock,
		Metrics:   p.Metrics,
		Config: business.Config{
			Interval:      p.Cfg.Interval,
			GroupDelayMin: p.Cfg.GroupDelayMin,
			GroupDelayMax: p.Cfg.GroupDelayMax,
			DailyCap:      p.Cfg.DailyCap,
			Location:      p.Cfg.Location(),
			MaxRetries:    p.Cfg.MaxRetries,
			RetryBuffer:   p.Cfg.RetryBuffer,
			SendTimeout:   p.Cfg.SendTimeout,
		},
		Logger: p.Logger,
	})

	p.Manager.Subscribe(scheduler)

	// Appended after the session manager hooks, so jobs stop before clients disconnect
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := scheduler.Shutdown(ctx); err != nil {
				p.Logger.Warn().Err(err).Msg("broadcast jobs did not stop in time")
			}
			return nil
		},
	})

	return scheduler
}

// NewMaintenanceFx creates the daily reset and stats pruning worker
func NewMaintenanceFx(
	settings deps.SettingsStore,
	cycles deps.CycleStore,
	clock utils.Clock,
	cfg *config.BroadcastConfig,
	logger zerolog.Logger,
) *workers.Maintenance {
	return workers.NewMaintenance(settings, cycles, clock, workers.MaintenanceConfig{
		Location:       cfg.Location(),
		StatsRetention: cfg.StatsRetention,
	}, logger)
}

// RegisterMaintenance starts the maintenance worker with the application
func RegisterMaintenance(lc fx.Lifecycle, m *workers.Maintenance) {
	lc.Append(fx.Hook{
		OnStart: m.Start,
		OnStop:  m.Stop,
	})
}

// RegisterRoutes registers broadcast HTTP routes on the server
func RegisterRoutes(srv *server.Server, router *broadcasthttp.Router) {
	router.RegisterRoutes(srv.Router)
}

var _ deps.Scheduler = (*business.Scheduler)(nil)
