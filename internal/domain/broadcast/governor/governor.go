// Package governor wraps outbound protocol calls with flood-wait aware retries.
package governor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/infrastructure/metrics"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/utils"
)

const networkBackoff = time.Second

// Options bound a single Execute call
type Options struct {
	// MaxRetries is the total number of attempts, values below 1 mean one attempt
	MaxRetries int
	// Buffer is added to every remote flood-wait before retrying
	Buffer time.Duration
	// ThrowOnFailure returns exhaustion as an error instead of a failed Outcome
	ThrowOnFailure bool
}

// Outcome describes how a call ended when no error was returned
type Outcome struct {
	Succeeded bool
	Attempts  int
	// Waited is the total time slept before retries
	Waited time.Duration
	// Err is the last call error of a failed outcome
	Err error
}

// RateLimitedError is returned with ThrowOnFailure when flood-waits outlived the retries
type RateLimitedError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s: %v", e.RetryAfter, e.Err)
}

func (e *RateLimitedError) Unwrap() error {
	return e.Err
}

// Governor serializes the flood-control state of one account
type Governor struct {
	accountID int64
	limiter   *rate.Limiter
	clock     utils.Clock
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	mu           sync.Mutex
	blockedUntil time.Time
}

// Execute runs call until it succeeds or the options are exhausted.
// ctx bounds the waits between attempts, call receives the same ctx.
func (g *Governor) Execute(ctx context.Context, call func(ctx context.Context) error, opts Options) (Outcome, error) {
	attempts := opts.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var out Outcome
	var lastWait time.Duration

	for out.Attempts < attempts {
		if err := g.waitTurn(ctx, &out); err != nil {
			return out, err
		}

		out.Attempts++
		err := call(ctx)
		if err == nil {
			out.Succeeded = true
			out.Err = nil
			return out, nil
		}
		out.Err = err

		switch domain.KindOf(err) {
		case domain.KindFloodWait:
			wait, _ := domain.FloodWaitOf(err)
			lastWait = wait + opts.Buffer
			g.block(lastWait)
			g.metrics.RecordFloodWait(wait.Seconds())
			g.logger.Warn().
				Err(err).
				Int("attempt", out.Attempts).
				Dur("wait", lastWait).
				Msg("flood wait received")
		case domain.KindNetwork:
			lastWait = 0
			g.block(time.Duration(out.Attempts) * networkBackoff)
			g.logger.Debug().Err(err).Int("attempt", out.Attempts).Msg("network error, backing off")
		default:
			return g.fail(out, err, 0, opts)
		}
	}

	return g.fail(out, out.Err, lastWait, opts)
}

// BlockedFor returns how long calls are held back by a previous flood-wait
func (g *Governor) BlockedFor() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if d := g.blockedUntil.Sub(g.clock.Now()); d > 0 {
		return d
	}
	return 0
}

func (g *Governor) waitTurn(ctx context.Context, out *Outcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d := g.BlockedFor(); d > 0 {
		if err := g.clock.Sleep(ctx, d); err != nil {
			return err
		}
		out.Waited += d
	}
	return g.limiter.Wait(ctx)
}

func (g *Governor) block(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if until := g.clock.Now().Add(d); until.After(g.blockedUntil) {
		g.blockedUntil = until
	}
}

func (g *Governor) fail(out Outcome, err error, retryAfter time.Duration, opts Options) (Outcome, error) {
	out.Succeeded = false
	out.Err = err
	if !opts.ThrowOnFailure {
		return out, nil
	}
	if retryAfter > 0 {
		return out, &RateLimitedError{RetryAfter: retryAfter, Err: err}
	}
	return out, err
}

// Pool hands out one independent governor per account
type Pool struct {
	limit   rate.Limit
	burst   int
	clock   utils.Clock
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu        sync.Mutex
	governors map[int64]*Governor
}

// NewPool creates a governor pool, ratePerSecond <= 0 disables client side pacing
func NewPool(ratePerSecond float64, burst int, clock utils.Clock, m *metrics.Metrics, logger zerolog.Logger) *Pool {
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &Pool{
		limit:     limit,
		burst:     burst,
		clock:     clock,
		metrics:   m,
		logger:    logger.With().Str("component", "governor").Logger(),
		governors: make(map[int64]*Governor),
	}
}

// For returns the governor of an account
func (p *Pool) For(accountID int64) *Governor {
	p.mu.Lock()
	defer p.mu.Unlock()

	g, ok := p.governors[accountID]
	if !ok {
		g = &Governor{
			accountID: accountID,
			limiter:   rate.NewLimiter(p.limit, p.burst),
			clock:     p.clock,
			metrics:   p.metrics,
			logger:    p.logger.With().Int64("account_id", accountID).Logger(),
		}
		p.governors[accountID] = g
	}
	return g
}

// Remove forgets the state of an account
func (p *Pool) Remove(accountID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.governors, accountID)
}
