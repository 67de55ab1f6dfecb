package config

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("WORKER_ID", "w-1")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "{crmsync}", cfg.QueuePrefix)
	assert.Equal(t, "w-1", cfg.WorkerID)
	assert.Equal(t, 60, cfg.DefaultRateLimit)
	assert.Equal(t, time.Minute, cfg.RateWindow)
	assert.Equal(t, 5, cfg.BreakerThreshold)
	assert.Equal(t, 30*time.Second, cfg.BreakerTimeout)
	assert.Equal(t, 30*time.Second, cfg.RateLimitDelay)
	assert.Equal(t, 60*time.Second, cfg.CircuitOpenDelay)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.True(t, cfg.StatsEnabled)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("BREAKER_THRESHOLD", "3")
	t.Setenv("BREAKER_TIMEOUT", "2s")
	t.Setenv("QUEUE_RPS", "12.5")
	t.Setenv("STATS_BUCKET", "none")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis:6380", cfg.RedisAddr)
	assert.Equal(t, 3, cfg.BreakerThreshold)
	assert.Equal(t, 2*time.Second, cfg.BreakerTimeout)
	assert.Equal(t, 12.5, cfg.PacerRPS)
	assert.Equal(t, "none", cfg.StatsBucket)
	assert.NotEmpty(t, cfg.WorkerID)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string][2]string{
		"bad int":        {"RATE_LIMIT", "lots"},
		"zero limit":     {"RATE_LIMIT", "0"},
		"zero threshold": {"BREAKER_THRESHOLD", "0"},
		"negative rps":   {"QUEUE_RPS", "-1"},
		"bad bucket":     {"STATS_BUCKET", "hour"},
		"bad duration":   {"BREAKER_TIMEOUT", "soon"},
	}
	for name, kv := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestRetries(t *testing.T) {
	assert.Equal(t, -1, Config{MaxRetries: 0}.Retries())
	assert.Equal(t, 5, Config{MaxRetries: 5}.Retries())
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := Config{RedisAddr: mr.Addr()}

	rdb, err := cfg.NewRedisClient(context.Background())
	require.NoError(t, err)
	require.NoError(t, rdb.Close())

	mr.Close()
	_, err = cfg.NewRedisClient(context.Background())
	assert.Error(t, err)
}
