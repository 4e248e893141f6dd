// Package directory keeps the broadcast destinations of each account.
package directory

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/deps"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/entities"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/utils"
)

// Config holds directory settings
type Config struct {
	// SyncInterval is the minimum time between two remote group listings of an account
	SyncInterval time.Duration
	// BlacklistAfter consecutive destination failures blacklist a group, 0 disables it
	BlacklistAfter int
}

// Directory implements deps.GroupDirectory on top of a group store
type Directory struct {
	groups   deps.GroupStore
	sessions deps.Sessions
	clock    utils.Clock
	cfg      Config
	logger   zerolog.Logger

	syncMu sync.Map // int64 -> *sync.Mutex
}

// New creates a group directory
func New(groups deps.GroupStore, sessions deps.Sessions, clock utils.Clock, cfg Config, logger zerolog.Logger) *Directory {
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = 30 * time.Minute
	}
	return &Directory{
		groups:   groups,
		sessions: sessions,
		clock:    clock,
		cfg:      cfg,
		logger:   logger.With().Str("component", "group_directory").Logger(),
	}
}

// ActiveGroups refreshes the stored groups when they are stale and returns the eligible ones.
// A failed refresh falls back to the stored groups unless the session was revoked.
func (d *Directory) ActiveGroups(ctx context.Context, accountID int64) ([]*entities.Destination, error) {
	if err := d.syncIfStale(ctx, accountID); err != nil {
		if domain.IsSessionRevoked(err) || ctx.Err() != nil {
			return nil, err
		}
		d.logger.Warn().Err(err).Int64("account_id", accountID).Msg("group sync failed, using stored groups")
	}
	return d.groups.Active(ctx, accountID)
}

func (d *Directory) syncIfStale(ctx context.Context, accountID int64) error {
	value, _ := d.syncMu.LoadOrStore(accountID, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	last, err := d.groups.LastSync(ctx, accountID)
	if err != nil {
		return err
	}
	now := d.clock.Now()
	if !last.IsZero() && now.Sub(last) < d.cfg.SyncInterval {
		return nil
	}

	var groups []domain.Group
	err = d.sessions.WithClient(ctx, accountID, func(ctx context.Context, client domain.ProtocolClient) error {
		var err error
		groups, err = client.ListGroups(ctx)
		return err
	})
	if err != nil {
		return err
	}

	if err := d.groups.Sync(ctx, accountID, groups, now); err != nil {
		return err
	}
	d.logger.Info().Int64("account_id", accountID).Int("groups", len(groups)).Msg("groups synced")
	return nil
}

// ReportFailure records a destination failure
func (d *Directory) ReportFailure(ctx context.Context, dest *entities.Destination, err error) {
	blacklisted, recErr := d.groups.RecordFailure(ctx, dest.ID, err.Error(), d.cfg.BlacklistAfter)
	if recErr != nil {
		d.logger.Warn().Err(recErr).Int64("group_id", dest.ID).Msg("failed to record group failure")
		return
	}
	if blacklisted {
		d.logger.Warn().
			Int64("account_id", dest.AccountID).
			Int64("group_id", dest.ID).
			Str("title", dest.Title).
			Msg("group blacklisted after repeated failures")
	}
}

// ReportSuccess clears the failure streak of a destination
func (d *Directory) ReportSuccess(ctx context.Context, dest *entities.Destination) {
	if dest.FailureCount == 0 {
		return
	}
	if err := d.groups.RecordSuccess(ctx, dest.ID); err != nil {
		d.logger.Warn().Err(err).Int64("group_id", dest.ID).Msg("failed to reset group failures")
		return
	}
	dest.FailureCount = 0
}

var _ deps.GroupDirectory = (*Directory)(nil)
