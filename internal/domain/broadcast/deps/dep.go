package deps

import (
	"context"
	"time"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain"
	accdeps "github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/deps"
	accentities "github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/entities"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/entities"
)

// Sessions is the part of the session manager the scheduler borrows connections from
type Sessions interface {
	Account(ctx context.Context, accountID int64) (*accentities.Account, error)
	WithClient(ctx context.Context, accountID int64, fn func(ctx context.Context, client domain.ProtocolClient) error) error
	DetectRevocation(ctx context.Context, accountID int64, err error) bool
	Subscribe(listener accdeps.LifecycleListener)
}

// SettingsStore persists per-account broadcast settings and counters
type SettingsStore interface {
	// Get returns the stored settings, zero settings when the account has none
	Get(ctx context.Context, accountID int64) (*entities.Settings, error)
	// IncrementDailySent adds n to the counter of day without exceeding limit and returns the new value.
	// A counter of another day restarts from zero.
	IncrementDailySent(ctx context.Context, accountID int64, day string, n, limit int) (int, error)
	// ResetDaily zeroes counters that do not belong to day
	ResetDaily(ctx context.Context, day string) (int64, error)
	SavePoolCursor(ctx context.Context, accountID int64, cursor int) error
	SaveLastVariant(ctx context.Context, accountID int64, variant entities.Variant) error
}

// ContentStore loads the messages an account may broadcast
type ContentStore interface {
	Load(ctx context.Context, accountID int64) (*entities.Content, error)
}

// GroupStore persists the groups of each account
type GroupStore interface {
	// Sync upserts groups and marks the ones not listed as left
	Sync(ctx context.Context, accountID int64, groups []domain.Group, at time.Time) error
	// Active returns groups that are neither left nor blacklisted
	Active(ctx context.Context, accountID int64) ([]*entities.Destination, error)
	LastSync(ctx context.Context, accountID int64) (time.Time, error)
	// RecordFailure counts a failed send and blacklists the group once blacklistAfter is reached, 0 disables blacklisting
	RecordFailure(ctx context.Context, groupID int64, reason string, blacklistAfter int) (bool, error)
	RecordSuccess(ctx context.Context, groupID int64) error
}

// CycleStore persists cycle statistics
type CycleStore interface {
	Save(ctx context.Context, stats *entities.CycleStats) error
	ListRecent(ctx context.Context, accountID int64, limit int) ([]*entities.CycleStats, error)
	// Prune deletes statistics finished before the given time
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// PremiumChecker reports premium exemptions from the tag requirement
type PremiumChecker interface {
	IsPremium(ctx context.Context, userID int64, now time.Time) (bool, error)
}

// JobRegistry guarantees a single running job per key
type JobRegistry interface {
	// TryAcquire atomically claims key, false when it is already held
	TryAcquire(ctx context.Context, key entities.JobKey) (bool, error)
	// Refresh extends the claim of a long running job
	Refresh(ctx context.Context, key entities.JobKey) error
	Release(ctx context.Context, key entities.JobKey)
}

// GroupDirectory returns broadcast destinations of an account
type GroupDirectory interface {
	ActiveGroups(ctx context.Context, accountID int64) ([]*entities.Destination, error)
	ReportFailure(ctx context.Context, dest *entities.Destination, err error)
	ReportSuccess(ctx context.Context, dest *entities.Destination)
}

// TagGate checks the profile requirement before a job may start
type TagGate interface {
	// Check returns nil when the account may broadcast
	Check(ctx context.Context, userID, accountID int64) error
}

// Notifier delivers best-effort events, it never blocks the caller
type Notifier interface {
	Notify(event entities.Event)
}

// Sink is one notification destination
type Sink interface {
	Name() string
	Publish(ctx context.Context, event entities.Event) error
}

// Scheduler runs broadcast jobs
type Scheduler interface {
	Start(ctx context.Context, userID, accountID int64) error
	// Stop requests the job to stop, it never interrupts a send in flight
	Stop(ctx context.Context, userID, accountID int64)
	IsRunning(userID, accountID int64) bool
	// RunningAccountForUser returns the account broadcasting for the user
	RunningAccountForUser(userID int64) (int64, bool)
	Job(userID, accountID int64) (*entities.Job, bool)
	Jobs(userID int64) []*entities.Job
}

// CommandHandler applies remote control commands
type CommandHandler interface {
	// HandleCommand returns an error only when the command should be retried
	HandleCommand(ctx context.Context, cmd entities.Command) error
}
