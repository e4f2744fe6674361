package config

import (
	"fmt"
	"time"

	"github.com/aescanero/dago-direct/internal/application/executor"
	"github.com/aescanero/dago-direct/internal/application/orchestrator"
	"github.com/aescanero/dago-direct/internal/application/workers"
	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the direct engine
type Config struct {
	// Server configuration
	HTTPPort int    `env:"DAGO_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"DAGO_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Redis configuration
	Redis RedisConfig

	// Worker configuration
	Workers WorkerConfig

	// Retry configuration
	Retry RetryConfig

	// Observability side channel
	Events EventsConfig

	// Timeouts
	Timeouts TimeoutConfig
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Enabled  bool   `env:"REDIS_ENABLED" envDefault:"false"`
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`

	// ReportTTL is how long run reports are kept
	ReportTTL time.Duration `env:"REDIS_REPORT_TTL" envDefault:"24h"`
}

// WorkerConfig holds worker pool configuration
type WorkerConfig struct {
	PoolSize            int           `env:"WORKER_POOL_SIZE" envDefault:"4"`
	QueueCapacity       int           `env:"WORKER_QUEUE_CAPACITY" envDefault:"1024"`
	EnqueueTimeout      time.Duration `env:"WORKER_ENQUEUE_TIMEOUT" envDefault:"30s"`
	HealthCheckInterval time.Duration `env:"WORKER_HEALTH_CHECK_INTERVAL" envDefault:"30s"`
}

// RetryConfig holds the default retry policy for user processing errors
type RetryConfig struct {
	MaxRetries     int           `env:"RETRY_MAX_RETRIES" envDefault:"3"`
	InitialBackoff time.Duration `env:"RETRY_INITIAL_BACKOFF" envDefault:"100ms"`
	MaxBackoff     time.Duration `env:"RETRY_MAX_BACKOFF" envDefault:"5s"`
	Multiplier     float64       `env:"RETRY_MULTIPLIER" envDefault:"2"`
}

// EventsConfig holds event notifier configuration
type EventsConfig struct {
	BufferSize int `env:"EVENTS_BUFFER_SIZE" envDefault:"1024"`
}

// TimeoutConfig holds various timeout configurations
type TimeoutConfig struct {
	ShutdownTimeout time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	// Validate Redis config
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required when redis is enabled")
	}

	// Validate worker config
	if c.Workers.PoolSize < 1 {
		return fmt.Errorf("worker pool size must be at least 1")
	}
	if c.Workers.QueueCapacity < 1 {
		return fmt.Errorf("worker queue capacity must be at least 1")
	}
	if c.Workers.EnqueueTimeout <= 0 {
		return fmt.Errorf("worker enqueue timeout must be positive")
	}

	// Validate retry config
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry max retries must not be negative")
	}
	if c.Retry.InitialBackoff <= 0 || c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		return fmt.Errorf("invalid retry backoff: initial %s, max %s", c.Retry.InitialBackoff, c.Retry.MaxBackoff)
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry multiplier must be at least 1")
	}

	if c.Events.BufferSize < 1 {
		return fmt.Errorf("events buffer size must be at least 1")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// Engine returns the scheduler options described by the configuration.
func (c *Config) Engine() orchestrator.Options {
	retry := executor.DefaultConfig()
	retry.MaxRetries = c.Retry.MaxRetries
	retry.InitialBackoff = c.Retry.InitialBackoff
	retry.MaxBackoff = c.Retry.MaxBackoff
	retry.Multiplier = c.Retry.Multiplier

	opts := orchestrator.DefaultOptions()
	opts.Workers = workers.Options{
		Size:           c.Workers.PoolSize,
		QueueCapacity:  c.Workers.QueueCapacity,
		EnqueueTimeout: c.Workers.EnqueueTimeout,
		HealthInterval: c.Workers.HealthCheckInterval,
	}
	opts.Executor = retry
	opts.EventBuffer = c.Events.BufferSize
	opts.ShutdownTimeout = c.Timeouts.ShutdownTimeout
	return opts
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
