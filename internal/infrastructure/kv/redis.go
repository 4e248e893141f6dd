// Package kv provides the shared Redis client
package kv

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const pingTimeout = 2 * time.Second

// NewClient creates a Redis client and checks the connection
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

// Pinger is the part of the client the health check needs
type Pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// Health probes Redis in the background, IsHealthy never blocks a health request
type Health struct {
	client   Pinger
	interval time.Duration
	logger   zerolog.Logger
	healthy  atomic.Bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewHealth creates a probe, it reports healthy until the first failed ping
func NewHealth(client Pinger, interval time.Duration, logger zerolog.Logger) *Health {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	h := &Health{
		client:   client,
		interval: interval,
		logger:   logger.With().Str("component", "redis_health").Logger(),
		done:     make(chan struct{}),
	}
	h.healthy.Store(true)
	return h
}

// Name identifies the health component
func (h *Health) Name() string {
	return "redis"
}

// IsHealthy returns the result of the last probe
func (h *Health) IsHealthy() bool {
	return h.healthy.Load()
}

// Probe pings Redis once and records the result
func (h *Health) Probe(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	err := h.client.Ping(pingCtx).Err()
	healthy := err == nil
	if h.healthy.Swap(healthy) != healthy {
		if healthy {
			h.logger.Info().Msg("redis reachable again")
		} else {
			h.logger.Warn().Err(err).Msg("redis unreachable")
		}
	}
	return healthy
}

// Start runs the probe loop until Stop
func (h *Health) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel

	go func() {
		defer close(h.done)
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.Probe(ctx)
			}
		}
	}()
}

// Stop ends the probe loop
func (h *Health) Stop() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	<-h.done
}
