package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TELEGRAM_API_ID", "12345")
	t.Setenv("TELEGRAM_API_HASH", "hash")
	t.Setenv("BROADCAST_REQUIRED_TAGS", " @mybot , #ad,,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 12345, cfg.Telegram.APIID)
	assert.Equal(t, 5, cfg.Auth.CodeLength)
	assert.Equal(t, 3, cfg.Auth.MaxPasswordAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Auth.SessionTTL)
	assert.Equal(t, time.Minute, cfg.Auth.PasswordCooldown)
	assert.Equal(t, 11*time.Minute, cfg.Broadcast.Interval)
	assert.Equal(t, 5*time.Second, cfg.Broadcast.GroupDelayMin)
	assert.Equal(t, 10*time.Second, cfg.Broadcast.GroupDelayMax)
	assert.Equal(t, []string{"@mybot", "#ad"}, cfg.Broadcast.RequiredTags)
	assert.Equal(t, time.Minute, cfg.Broadcast.SendTimeout)
	assert.False(t, cfg.Kafka.Enabled())
	assert.Equal(t, "broadcast.commands", cfg.Kafka.TopicCommands)
	assert.Equal(t, time.UTC, cfg.Broadcast.Location())
}

func TestLoad_MissingCredentials(t *testing.T) {
	t.Setenv("TELEGRAM_API_ID", "0")
	t.Setenv("TELEGRAM_API_HASH", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_API_ID")
}

func TestValidate_InvertedDelays(t *testing.T) {
	t.Setenv("TELEGRAM_API_ID", "1")
	t.Setenv("TELEGRAM_API_HASH", "hash")
	t.Setenv("BROADCAST_GROUP_DELAY_MIN", "20s")
	t.Setenv("BROADCAST_GROUP_DELAY_MAX", "10s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BROADCAST_GROUP_DELAY_MIN")
}

func TestValidate_BadTimezone(t *testing.T) {
	t.Setenv("TELEGRAM_API_ID", "1")
	t.Setenv("TELEGRAM_API_HASH", "hash")
	t.Setenv("BROADCAST_TIMEZONE", "Mars/Olympus")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BROADCAST_TIMEZONE")
}

func TestGetDSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", cfg.GetDSN())
}
