package kv

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakePinger struct {
	fail  atomic.Bool
	calls atomic.Int32
}

func (f *fakePinger) Ping(ctx context.Context) *redis.StatusCmd {
	f.calls.Add(1)
	cmd := redis.NewStatusCmd(ctx, "ping")
	if f.fail.Load() {
		cmd.SetErr(errors.New("connection refused"))
	} else {
		cmd.SetVal("PONG")
	}
	return cmd
}

func TestHealth_Probe(t *testing.T) {
	pinger := &fakePinger{}
	h := NewHealth(pinger, time.Minute, zerolog.Nop())

	assert.Equal(t, "redis", h.Name())
	assert.True(t, h.IsHealthy())

	pinger.fail.Store(true)
	assert.False(t, h.Probe(context.Background()))
	assert.False(t, h.IsHealthy())

	pinger.fail.Store(false)
	assert.True(t, h.Probe(context.Background()))
	assert.True(t, h.IsHealthy())
}

func TestHealth_StartProbesPeriodically(t *testing.T) {
	pinger := &fakePinger{}
	pinger.fail.Store(true)
	h := NewHealth(pinger, 10*time.Millisecond, zerolog.Nop())

	h.Start()
	defer h.Stop()

	assert.Eventually(t, func() bool { return !h.IsHealthy() }, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, pinger.calls.Load(), int32(1))
}

func TestHealth_StopWithoutStart(t *testing.T) {
	h := NewHealth(&fakePinger{}, time.Minute, zerolog.Nop())
	h.Stop()
}
