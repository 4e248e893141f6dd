package business

import (
	"context"
	"errors"
	"hash/fnv"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	accentities "github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/entities"
	accerrors "github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/errors"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/deps"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/entities"
	bcerrors "github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/errors"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/governor"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/infrastructure/metrics"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/utils"
	pkgerrors "github.com/Conte777/NewsFlow/services/broadcast-service/pkg/errors"
)

// Stop reasons reported in events
const (
	ReasonRequested      = "requested"
	ReasonSessionRevoked = "session_revoked"
	ReasonAccountRemoved = "account_removed"
	ReasonLeaseLost      = "lease_lost"
	ReasonShutdown       = "shutdown"
)

var errShuttingDown = pkgerrors.NewServiceUnavailableError("broadcast scheduler is shutting down")

// Config holds scheduler defaults applied where account settings leave zero values
type Config struct {
	Interval      time.Duration
	GroupDelayMin time.Duration
	GroupDelayMax time.Duration
	DailyCap      int
	Location      *time.Location
	MaxRetries    int
	RetryBuffer   time.Duration
	SendTimeout   time.Duration
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 11 * time.Minute
	}
	if c.GroupDelayMin <= 0 {
		c.GroupDelayMin = 5 * time.Second
	}
	if c.GroupDelayMax < c.GroupDelayMin {
		c.GroupDelayMax = c.GroupDelayMin
	}
	if c.DailyCap <= 0 {
		c.DailyCap = 100
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 60 * time.Second
	}
}

// Params groups scheduler collaborators
type Params struct {
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
	Config    Config
	Logger    zerolog.Logger
}

// Scheduler runs one recurring broadcast job per (user, account) pair
type Scheduler struct {
	sessions  deps.Sessions
	settings  deps.SettingsStore
	content   deps.ContentStore
	directory deps.GroupDirectory
	cycles    deps.CycleStore
	registry  deps.JobRegistry
	gate      deps.TagGate
	notifier  deps.Notifier
	governors *governor.Pool
	clock     utils.Clock
	metrics   *metrics.Metrics
	cfg       Config
	logger    zerolog.Logger

	// runCtx outlives every job, sends use it so Stop never aborts one
	runCtx    context.Context
	cancelRun context.CancelFunc

	mu     sync.Mutex
	jobs   map[entities.JobKey]*job
	closed bool
	wg     sync.WaitGroup
}

// NewScheduler creates a broadcast scheduler
func NewScheduler(p Params) *Scheduler {
	p.Config.applyDefaults()
	runCtx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		sessions:  p.Sessions,
		settings:  p.Settings,
		content:   p.Content,
		directory: p.Directory,
		cycles:    p.Cycles,
		registry:  p.Registry,
		gate:      p.Gate,
		notifier:  p.Notifier,
		governors: p.Governors,
		clock:     p.Clock,
		metrics:   p.Metrics,
		cfg:       p.Config,
		logger:    p.Logger.With().Str("component", "broadcast_scheduler").Logger(),
		runCtx:    runCtx,
		cancelRun: cancel,
		jobs:      make(map[entities.JobKey]*job),
	}
}

// job is the state of one running broadcast
type job struct {
	key     entities.JobKey
	waitCtx context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	rng     *rand.Rand
	logger  zerolog.Logger

	mu          sync.Mutex
	status      entities.JobStatus
	reason      string
	cycle       int
	dailySent   int
	startedAt   time.Time
	lastCycleAt time.Time
	nextRunAt   time.Time
}

func (j *job) requestStop(reason string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status == entities.StatusStopping {
		return false
	}
	j.status = entities.StatusStopping
	j.reason = reason
	j.cancel()
	return true
}

func (j *job) stopping() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status == entities.StatusStopping
}

func (j *job) snapshot() *entities.Job {
	j.mu.Lock()
	defer j.mu.Unlock()
	return &entities.Job{
		Key:         j.key,
		Status:      j.status,
		Cycle:       j.cycle,
		DailySent:   j.dailySent,
		StartedAt:   j.startedAt,
		LastCycleAt: j.lastCycleAt,
		NextRunAt:   j.nextRunAt,
	}
}

func (j *job) update(fn func(j *job)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fn(j)
}

// Start validates the pair and launches its job, the first cycle runs immediately
func (s *Scheduler) Start(ctx context.Context, userID, accountID int64) error {
	key := entities.JobKey{UserID: userID, AccountID: accountID}
	log := s.logger.With().Int64("user_id", userID).Int64("account_id", accountID).Logger()

	account, err := s.sessions.Account(ctx, accountID)
	switch {
	case errors.Is(err, accerrors.ErrAccountNotFound):
		return bcerrors.ErrNoAccount
	case err != nil:
		return err
	case account.UserID != userID:
		return accerrors.ErrNotOwned
	case account.Revoked:
		return bcerrors.ErrSessionRevoked
	}

	if s.hasJob(key) {
		return bcerrors.ErrAlreadyRunning
	}

	if err := s.gate.Check(ctx, userID, accountID); err != nil {
		log.Info().Err(err).Msg("broadcast start rejected")
		return err
	}

	acquired, err := s.registry.TryAcquire(ctx, key)
	if err != nil {
		return err
	}
	if !acquired {
		return bcerrors.ErrAlreadyRunning
	}

	waitCtx, cancel := context.WithCancel(s.runCtx)
	j := &job{
		key:       key,
		waitCtx:   waitCtx,
		cancel:    cancel,
		done:      make(chan struct{}),
		rng:       rand.New(rand.NewSource(s.clock.Now().UnixNano() ^ seed(key))),
		logger:    log,
		status:    entities.StatusRunning,
		startedAt: s.clock.Now(),
		nextRunAt: s.clock.Now(),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		s.registry.Release(context.WithoutCancel(ctx), key)
		return errShuttingDown
	}
	if _, exists := s.jobs[key]; exists {
		s.mu.Unlock()
		cancel()
		s.registry.Release(context.WithoutCancel(ctx), key)
		return bcerrors.ErrAlreadyRunning
	}
	s.jobs[key] = j
	s.wg.Add(1)
	s.mu.Unlock()

	s.metrics.JobStarted()
	s.notifier.Notify(entities.Event{
		Type:      entities.EventStarted,
		UserID:    userID,
		AccountID: accountID,
		At:        s.clock.Now(),
	})
	log.Info().Msg("broadcast started")

	go s.run(j)
	return nil
}

// Stop asks the job to stop after the send in flight, it is a no-op for unknown pairs
func (s *Scheduler) Stop(ctx context.Context, userID, accountID int64) {
	s.stop(entities.JobKey{UserID: userID, AccountID: accountID}, ReasonRequested)
}

// StopAndWait stops the job and waits until it exited or ctx is done
func (s *Scheduler) StopAndWait(ctx context.Context, userID, accountID int64) error {
	j := s.stop(entities.JobKey{UserID: userID, AccountID: accountID}, ReasonRequested)
	if j == nil {
		return nil
	}
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) stop(key entities.JobKey, reason string) *job {
	s.mu.Lock()
	j, ok := s.jobs[key]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	if j.requestStop(reason) {
		j.logger.Info().Str("reason", reason).Msg("broadcast stopping")
	}
	return j
}

// IsRunning reports whether the pair has a job that was not asked to stop
func (s *Scheduler) IsRunning(userID, accountID int64) bool {
	s.mu.Lock()
	j, ok := s.jobs[entities.JobKey{UserID: userID, AccountID: accountID}]
	s.mu.Unlock()
	return ok && !j.stopping()
}

// RunningAccountForUser returns the account broadcasting for the user, the latest started one when several are
func (s *Scheduler) RunningAccountForUser(userID int64) (int64, bool) {
	var (
		found     bool
		accountID int64
		startedAt time.Time
	)
	for _, snap := range s.Jobs(userID) {
		if snap.Status != entities.StatusRunning {
			continue
		}
		if !found || snap.StartedAt.After(startedAt) {
			found = true
			accountID = snap.Key.AccountID
			startedAt = snap.StartedAt
		}
	}
	return accountID, found
}

// Job returns a snapshot of the pair's job
func (s *Scheduler) Job(userID, accountID int64) (*entities.Job, bool) {
	s.mu.Lock()
	j, ok := s.jobs[entities.JobKey{UserID: userID, AccountID: accountID}]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	return j.snapshot(), true
}

// Jobs returns snapshots of every job of the user ordered by account
func (s *Scheduler) Jobs(userID int64) []*entities.Job {
	s.mu.Lock()
	var jobs []*job
	for key, j := range s.jobs {
		if key.UserID == userID {
			jobs = append(jobs, j)
		}
	}
	s.mu.Unlock()

	result := make([]*entities.Job, 0, len(jobs))
	for _, j := range jobs {
		result = append(result, j.snapshot())
	}
	sort.Slice(result, func(a, b int) bool {
		return result[a].Key.AccountID < result[b].Key.AccountID
	})
	return result
}

// OnSessionRevoked stops every job of the revoked account
func (s *Scheduler) OnSessionRevoked(ctx context.Context, account *accentities.Account) {
	for _, j := range s.jobsOfAccount(account.ID) {
		s.stop(j.key, ReasonSessionRevoked)
	}
}

// OnAccountRemoved stops every job of the account and waits for them to exit
func (s *Scheduler) OnAccountRemoved(ctx context.Context, account *accentities.Account) {
	for _, j := range s.jobsOfAccount(account.ID) {
		s.stop(j.key, ReasonAccountRemoved)
		select {
		case <-j.done:
		case <-ctx.Done():
			s.logger.Warn().Int64("account_id", account.ID).Msg("timeout waiting for broadcast to stop")
			return
		}
	}
	s.governors.Remove(account.ID)
}

func (s *Scheduler) jobsOfAccount(accountID int64) []*job {
	s.mu.Lock()
	defer s.mu.Unlock()
	var jobs []*job
	for key, j := range s.jobs {
		if key.AccountID == accountID {
			jobs = append(jobs, j)
		}
	}
	return jobs
}

// Shutdown stops every job and waits for them. Sends still in flight when ctx ends are aborted.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	jobs := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	for _, j := range jobs {
		j.requestStop(ReasonShutdown)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	defer s.cancelRun()
	select {
	case <-done:
		s.logger.Info().Int("jobs", len(jobs)).Msg("broadcast scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn().Msg("timeout waiting for broadcast jobs, aborting sends")
		return ctx.Err()
	}
}

func (s *Scheduler) hasJob(key entities.JobKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[key]
	return ok
}

// run loops until the job is asked to stop
func (s *Scheduler) run(j *job) {
	defer s.finish(j)

	for !j.stopping() {
		s.iterate(j)
	}
}

// finish releases the job, it disappears from the job map only after the stop was published
func (s *Scheduler) finish(j *job) {
	j.cancel()
	s.registry.Release(context.Background(), j.key)

	j.mu.Lock()
	reason := j.reason
	cycles := j.cycle
	j.status = entities.StatusIdle
	j.mu.Unlock()

	s.metrics.JobStopped()
	s.notifier.Notify(entities.Event{
		Type:      entities.EventStopped,
		UserID:    j.key.UserID,
		AccountID: j.key.AccountID,
		Reason:    reason,
		At:        s.clock.Now(),
	})
	j.logger.Info().Str("reason", reason).Int("cycles", cycles).Msg("broadcast stopped")

	s.mu.Lock()
	delete(s.jobs, j.key)
	s.mu.Unlock()

	close(j.done)
	s.wg.Done()
}

// sleep waits on the job's stop context
func (s *Scheduler) sleep(j *job, d time.Duration) {
	j.update(func(j *job) { j.nextRunAt = s.clock.Now().Add(d) })
	_ = s.clock.Sleep(j.waitCtx, d)
}

func seed(key entities.JobKey) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key.String()))
	return int64(h.Sum64())
}

var _ deps.Scheduler = (*Scheduler)(nil)
