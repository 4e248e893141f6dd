package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/deps"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/entities"
)

const leasePrefix = "broadcast:lease:"

// Compare-and-delete so an expired lease taken over by another instance is left alone
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Extends our lease or reclaims it after it expired during a long wait, a foreign lease wins
var refreshScript = redis.NewScript(`
local current = redis.call("get", KEYS[1])
if current == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
elseif not current then
	redis.call("set", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
else
	return 0
end
`)

// ErrLeaseLost is returned by Refresh when another instance took the lease over
var ErrLeaseLost = errors.New("job lease lost")

// LeaseRegistry layers a cross-instance Redis lease over a local registry
type LeaseRegistry struct {
	local  deps.JobRegistry
	client RedisClient
	ttl    time.Duration
	logger zerolog.Logger

	mu     sync.Mutex
	tokens map[entities.JobKey]string
}

// RedisClient is the subset of the go-redis client the lease needs
type RedisClient interface {
	redis.Scripter
	redis.StringCmdable
}

// NewLeaseRegistry creates a lease registry, local claims are checked first
func NewLeaseRegistry(local deps.JobRegistry, client RedisClient, ttl time.Duration, logger zerolog.Logger) *LeaseRegistry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &LeaseRegistry{
		local:  local,
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "job_lease").Logger(),
		tokens: make(map[entities.JobKey]string),
	}
}

// TryAcquire claims key locally and then in Redis
func (r *LeaseRegistry) TryAcquire(ctx context.Context, key entities.JobKey) (bool, error) {
	ok, err := r.local.TryAcquire(ctx, key)
	if err != nil || !ok {
		return ok, err
	}

	token := uuid.NewString()
	acquired, err := r.client.SetNX(ctx, leaseKey(key), token, r.ttl).Result()
	if err != nil {
		r.local.Release(ctx, key)
		return false, fmt.Errorf("failed to acquire job lease: %w", err)
	}
	if !acquired {
		r.local.Release(ctx, key)
		r.logger.Info().Str("job", key.String()).Msg("job is running on another instance")
		return false, nil
	}

	r.mu.Lock()
	r.tokens[key] = token
	r.mu.Unlock()
	return true, nil
}

// Refresh extends the Redis lease, ErrLeaseLost when another instance holds it
func (r *LeaseRegistry) Refresh(ctx context.Context, key entities.JobKey) error {
	token, ok := r.token(key)
	if !ok {
		return ErrLeaseLost
	}

	res, err := refreshScript.Run(ctx, r.client, []string{leaseKey(key)}, token, r.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to refresh job lease: %w", err)
	}
	if res == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Release drops the Redis lease and the local claim
func (r *LeaseRegistry) Release(ctx context.Context, key entities.JobKey) {
	defer r.local.Release(ctx, key)

	token, ok := r.token(key)
	if !ok {
		return
	}
	r.mu.Lock()
	delete(r.tokens, key)
	r.mu.Unlock()

	if err := releaseScript.Run(ctx, r.client, []string{leaseKey(key)}, token).Err(); err != nil {
		r.logger.Warn().Err(err).Str("job", key.String()).Msg("failed to release job lease")
	}
}

func (r *LeaseRegistry) token(key entities.JobKey) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[key]
	return token, ok
}

func leaseKey(key entities.JobKey) string {
	return leasePrefix + key.String()
}

var _ deps.JobRegistry = (*LeaseRegistry)(nil)
