package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/coins?parseTime=true")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.InDelta(t, 0.003, cfg.CoinUSDRate, 1e-9)
	assert.False(t, cfg.ArchiveEventPayloads)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("MYSQL_DSN", "")
	t.Setenv("STRIPE_SECRET_KEY", "")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MYSQL_DSN")
	assert.Contains(t, err.Error(), "STRIPE_SECRET_KEY")
}

func TestLoadArchiveRequiresCredentials(t *testing.T) {
	setRequired(t)
	t.Setenv("ARCHIVE_EVENT_PAYLOADS", "true")
	t.Setenv("ARCHIVE_S3_REGION", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ARCHIVE_S3_REGION")
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("HTTP_TIMEOUT_SECONDS", "30")
	t.Setenv("COIN_USD_RATE", "0.01")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.InDelta(t, 0.01, cfg.CoinUSDRate, 1e-9)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}
