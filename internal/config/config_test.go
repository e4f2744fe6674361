package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 9090, cfg.GRPCPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Redis.ReportTTL)
	assert.Equal(t, 4, cfg.Workers.PoolSize)
	assert.Equal(t, 1024, cfg.Workers.QueueCapacity)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, ":8080", cfg.GetHTTPAddr())
	assert.Equal(t, ":9090", cfg.GetGRPCAddr())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("DAGO_HTTP_PORT", "18080")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("WORKER_POOL_SIZE", "16")
	t.Setenv("WORKER_ENQUEUE_TIMEOUT", "250ms")
	t.Setenv("RETRY_MAX_RETRIES", "0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 18080, cfg.HTTPPort)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 16, cfg.Workers.PoolSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Workers.EnqueueTimeout)
	assert.Equal(t, 0, cfg.Retry.MaxRetries)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("WORKER_POOL_SIZE", "zero")
	_, err := Load()
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"http port", func(c *Config) { c.HTTPPort = 0 }, "invalid HTTP port"},
		{"grpc port", func(c *Config) { c.GRPCPort = 70000 }, "invalid gRPC port"},
		{"redis addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }, "redis address is required"},
		{"pool size", func(c *Config) { c.Workers.PoolSize = 0 }, "worker pool size"},
		{"queue capacity", func(c *Config) { c.Workers.QueueCapacity = 0 }, "worker queue capacity"},
		{"enqueue timeout", func(c *Config) { c.Workers.EnqueueTimeout = 0 }, "enqueue timeout"},
		{"negative retries", func(c *Config) { c.Retry.MaxRetries = -1 }, "must not be negative"},
		{"backoff order", func(c *Config) { c.Retry.MaxBackoff = time.Millisecond }, "invalid retry backoff"},
		{"multiplier", func(c *Config) { c.Retry.Multiplier = 0.5 }, "retry multiplier"},
		{"events buffer", func(c *Config) { c.Events.BufferSize = 0 }, "events buffer size"},
		{"log level", func(c *Config) { c.LogLevel = "trace" }, "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)

			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestConfig_Engine(t *testing.T) {
	t.Setenv("WORKER_POOL_SIZE", "2")
	t.Setenv("WORKER_QUEUE_CAPACITY", "8")
	t.Setenv("RETRY_INITIAL_BACKOFF", "10ms")
	t.Setenv("RETRY_MAX_BACKOFF", "1s")
	t.Setenv("EVENTS_BUFFER_SIZE", "32")
	t.Setenv("TIMEOUT_SHUTDOWN", "3s")

	cfg, err := Load()
	require.NoError(t, err)

	opts := cfg.Engine()
	assert.Equal(t, 2, opts.Workers.Size)
	assert.Equal(t, 8, opts.Workers.QueueCapacity)
	assert.Equal(t, 30*time.Second, opts.Workers.EnqueueTimeout)
	assert.Equal(t, 3, opts.Executor.MaxRetries)
	assert.Equal(t, 10*time.Millisecond, opts.Executor.InitialBackoff)
	assert.Equal(t, time.Second, opts.Executor.MaxBackoff)
	assert.NotNil(t, opts.Executor.Classify)
	assert.Equal(t, 32, opts.EventBuffer)
	assert.Equal(t, 3*time.Second, opts.ShutdownTimeout)
}
