package governor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/infrastructure/metrics"
)

// fakeClock advances on Sleep instead of blocking
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func newTestPool(clock *fakeClock) *Pool {
	return NewPool(0, 1, clock, metrics.GetDefaultMetrics(), zerolog.Nop())
}

func floodWait(d time.Duration) error {
	return domain.NewFloodWaitError(d, "FLOOD_WAIT", errors.New("rpc error code 420: FLOOD_WAIT"))
}

func TestExecute_Success(t *testing.T) {
	clock := newFakeClock()
	g := newTestPool(clock).For(1)

	calls := 0
	out, err := g.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	}, Options{MaxRetries: 3})

	require.NoError(t, err)
	assert.True(t, out.Succeeded)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, 1, calls)
	assert.Empty(t, clock.sleeps)
}

func TestExecute_FloodWaitThenSuccess(t *testing.T) {
	clock := newFakeClock()
	g := newTestPool(clock).For(1)

	calls := 0
	out, err := g.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return floodWait(3 * time.Second)
		}
		return nil
	}, Options{MaxRetries: 2, Buffer: 2 * time.Second})

	require.NoError(t, err)
	assert.True(t, out.Succeeded)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, []time.Duration{5 * time.Second}, clock.sleeps)
	assert.Equal(t, 5*time.Second, out.Waited)
}

func TestExecute_FloodWaitExhausted(t *testing.T) {
	clock := newFakeClock()
	g := newTestPool(clock).For(1)

	calls := 0
	call := func(ctx context.Context) error {
		calls++
		return floodWait(3 * time.Second)
	}

	out, err := g.Execute(context.Background(), call, Options{MaxRetries: 2, Buffer: time.Second})

	require.NoError(t, err)
	assert.False(t, out.Succeeded)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, 2, calls)
	// One sleep between the two attempts, none after the last one
	require.Len(t, clock.sleeps, 1)
	assert.GreaterOrEqual(t, clock.sleeps[0], 4*time.Second)
	assert.Equal(t, domain.KindFloodWait, domain.KindOf(out.Err))
}

func TestExecute_ThrowOnFailure(t *testing.T) {
	clock := newFakeClock()
	g := newTestPool(clock).For(1)

	_, err := g.Execute(context.Background(), func(ctx context.Context) error {
		return floodWait(10 * time.Second)
	}, Options{MaxRetries: 1, Buffer: time.Second, ThrowOnFailure: true})

	var rl *RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 11*time.Second, rl.RetryAfter)
	assert.Equal(t, domain.KindFloodWait, domain.KindOf(err))
}

func TestExecute_NonRetryableReturnsImmediately(t *testing.T) {
	clock := newFakeClock()
	g := newTestPool(clock).For(1)
	destErr := domain.NewProtocolError(domain.KindDestination, "CHAT_WRITE_FORBIDDEN", errors.New("forbidden"))

	calls := 0
	out, err := g.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return destErr
	}, Options{MaxRetries: 5})

	require.NoError(t, err)
	assert.False(t, out.Succeeded)
	assert.Equal(t, 1, calls)
	assert.Equal(t, destErr, out.Err)

	_, err = g.Execute(context.Background(), func(ctx context.Context) error {
		return destErr
	}, Options{MaxRetries: 5, ThrowOnFailure: true})
	assert.Equal(t, destErr, err)
}

func TestExecute_NetworkBackoff(t *testing.T) {
	clock := newFakeClock()
	g := newTestPool(clock).For(1)

	calls := 0
	out, err := g.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return domain.NewProtocolError(domain.KindNetwork, "", errors.New("connection reset"))
		}
		return nil
	}, Options{MaxRetries: 3})

	require.NoError(t, err)
	assert.True(t, out.Succeeded)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.sleeps)
}

func TestExecute_CancelledBetweenAttempts(t *testing.T) {
	clock := newFakeClock()
	g := newTestPool(clock).For(1)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := g.Execute(ctx, func(context.Context) error {
		calls++
		cancel()
		return floodWait(time.Second)
	}, Options{MaxRetries: 3})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestExecute_BlockCarriesOverToNextCall(t *testing.T) {
	clock := newFakeClock()
	g := newTestPool(clock).For(1)

	_, _ = g.Execute(context.Background(), func(context.Context) error {
		return floodWait(30 * time.Second)
	}, Options{MaxRetries: 1})
	assert.Equal(t, 30*time.Second, g.BlockedFor())

	out, err := g.Execute(context.Background(), func(context.Context) error { return nil }, Options{MaxRetries: 1})
	require.NoError(t, err)
	assert.True(t, out.Succeeded)
	assert.Equal(t, 30*time.Second, out.Waited)
	assert.Zero(t, g.BlockedFor())
}

func TestPool_AccountsAreIndependent(t *testing.T) {
	clock := newFakeClock()
	pool := newTestPool(clock)

	_, _ = pool.For(1).Execute(context.Background(), func(context.Context) error {
		return floodWait(time.Hour)
	}, Options{MaxRetries: 1})

	assert.Equal(t, time.Hour, pool.For(1).BlockedFor())
	assert.Zero(t, pool.For(2).BlockedFor())

	out, err := pool.For(2).Execute(context.Background(), func(context.Context) error { return nil }, Options{MaxRetries: 1})
	require.NoError(t, err)
	assert.True(t, out.Succeeded)
	assert.Zero(t, out.Waited)

	pool.Remove(1)
	assert.Zero(t, pool.For(1).BlockedFor())
}
