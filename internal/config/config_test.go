package config

import (
	"testing"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T) *Config {
	t.Helper()
	var cfg Config
	_, err := flags.ParseArgs(&cfg, nil)
	require.NoError(t, err)
	return &cfg
}

func TestDefaults(t *testing.T) {
	cfg := parse(t)

	assert.Equal(t, "localhost:6379", cfg.RedisAddr())
	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, 5*time.Second, cfg.RedisTimeout())
	assert.Equal(t, "http://localhost:8001", cfg.DefaultProcessorURL)
	assert.Equal(t, "http://localhost:8002", cfg.FallbackProcessorURL)
	assert.Equal(t, "rinha-payments-main-queue", cfg.MainQueueKey)
	assert.Equal(t, 100, cfg.MaxConcurrentPayments)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 200*time.Millisecond, cfg.ExecutionDelay())
	assert.Equal(t, 2, cfg.MaxRetryAttemptsPerDispatch)
	assert.Equal(t, 3, cfg.MaxReenqueueCount)
	assert.False(t, cfg.AssumeHealthyWhenUnknown)
	assert.False(t, cfg.EnableCounters)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("REDIS_HOST", "shared-store")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("PAYMENT_PROCESSOR_DEFAULT_URL", "http://processor-default:8080")
	t.Setenv("REDIS_QUEUE_PAYMENTS_MAIN", "payments")
	t.Setenv("WORKER_MAX_CONCURRENT_PAYMENTS", "25")
	t.Setenv("WORKER_EXECUTION_DELAY", "50")
	t.Setenv("WORKER_ASSUME_HEALTHY_WHEN_UNKNOWN", "true")

	cfg := parse(t)

	assert.Equal(t, "shared-store:6380", cfg.RedisAddr())
	assert.Equal(t, "http://processor-default:8080", cfg.DefaultProcessorURL)
	assert.Equal(t, "payments", cfg.MainQueueKey)
	assert.Equal(t, 25, cfg.MaxConcurrentPayments)
	assert.Equal(t, 50*time.Millisecond, cfg.ExecutionDelay())
	assert.True(t, cfg.AssumeHealthyWhenUnknown)
}
