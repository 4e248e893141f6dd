package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/deps"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

func (c fixedClock) Sleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

type fakeSettings struct {
	deps.SettingsStore
	days []string
	err  error
}

func (s *fakeSettings) ResetDaily(ctx context.Context, day string) (int64, error) {
	s.days = append(s.days, day)
	return 3, s.err
}

type fakeCycles struct {
	deps.CycleStore
	before []time.Time
}

func (c *fakeCycles) Prune(ctx context.Context, before time.Time) (int64, error) {
	c.before = append(c.before, before)
	return 1, nil
}

var _ deps.CycleStore = (*fakeCycles)(nil)

func TestMaintenance_ResetUsesBroadcastTimezone(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	settings := &fakeSettings{}
	m := NewMaintenance(settings, &fakeCycles{}, fixedClock{now: time.Date(2026, 5, 1, 22, 30, 0, 0, time.UTC)},
		MaintenanceConfig{Location: loc}, zerolog.Nop())

	require.NoError(t, m.ResetDailyCounters(context.Background()))
	assert.Equal(t, []string{"2026-05-02"}, settings.days)
}

func TestMaintenance_PruneStats(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	cycles := &fakeCycles{}
	m := NewMaintenance(&fakeSettings{}, cycles, fixedClock{now: now},
		MaintenanceConfig{StatsRetention: 30 * 24 * time.Hour}, zerolog.Nop())

	require.NoError(t, m.PruneStats(context.Background()))
	assert.Equal(t, []time.Time{now.Add(-30 * 24 * time.Hour)}, cycles.before)
}

func TestMaintenance_PruneDisabled(t *testing.T) {
	cycles := &fakeCycles{}
	m := NewMaintenance(&fakeSettings{}, cycles, fixedClock{now: time.Now()}, MaintenanceConfig{}, zerolog.Nop())

	require.NoError(t, m.PruneStats(context.Background()))
	assert.Empty(t, cycles.before)
}

func TestMaintenance_StartSchedulesJobs(t *testing.T) {
	settings := &fakeSettings{}
	m := NewMaintenance(settings, &fakeCycles{}, fixedClock{now: time.Now()},
		MaintenanceConfig{StatsRetention: time.Hour}, zerolog.Nop())

	require.NoError(t, m.Start(context.Background()))
	defer func() {
		require.NoError(t, m.Stop(context.Background()))
	}()

	assert.Equal(t, 2, m.Entries())
	assert.Len(t, settings.days, 1, "start must catch up on the daily reset")
}

func TestMaintenance_StartToleratesResetFailure(t *testing.T) {
	settings := &fakeSettings{err: errors.New("db down")}
	m := NewMaintenance(settings, &fakeCycles{}, fixedClock{now: time.Now()}, MaintenanceConfig{}, zerolog.Nop())

	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, 1, m.Entries())
	require.NoError(t, m.Stop(context.Background()))
}

