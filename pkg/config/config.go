// Package config loads the configuration consumed by lockward binaries. The
// core worker only ever receives values; parsing and precedence live here.
package config

import (
	"time"

	"github.com/lockward/lockward/pkg/resilience"
)

// Backend selects the lock strategy implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
	BackendMongoDB  Backend = "mongodb"
)

// Config is the full configuration tree.
type Config struct {
	Service ServiceConfig `mapstructure:"service"`
	Log     LogConfig     `mapstructure:"log"`
	Lock    LockConfig    `mapstructure:"lock"`
	Backend BackendConfig `mapstructure:"backend"`
	Server  ServerConfig  `mapstructure:"server"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// ServiceConfig identifies the running service.
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LockConfig is the worker policy surface.
type LockConfig struct {
	Name                    string        `mapstructure:"name"`
	OwnerID                 string        `mapstructure:"owner_id"`
	TTL                     time.Duration `mapstructure:"ttl"`
	RenewFraction           float64       `mapstructure:"renew_fraction"`
	ClockSkewMargin         time.Duration `mapstructure:"clock_skew_margin"`
	OperationTimeout        time.Duration `mapstructure:"operation_timeout"`
	CancellationGracePeriod time.Duration `mapstructure:"cancellation_grace_period"`
	RenewFailurePolicy      string        `mapstructure:"renew_failure_policy"`
	RestartOnLoss           bool          `mapstructure:"restart_on_loss"`
	AcquireRetry            RetryConfig   `mapstructure:"acquire_retry"`
}

// RetryConfig shapes acquisition backoff.
type RetryConfig struct {
	Initial    time.Duration `mapstructure:"initial"`
	Max        time.Duration `mapstructure:"max"`
	Multiplier float64       `mapstructure:"multiplier"`
}

// Backoff converts the retry settings into the resilience type.
func (c RetryConfig) Backoff() resilience.BackoffConfig {
	return resilience.BackoffConfig{
		Initial:    c.Initial,
		Max:        c.Max,
		Multiplier: c.Multiplier,
	}
}

// BackendConfig selects and configures the lock strategy.
type BackendConfig struct {
	Type     Backend        `mapstructure:"type"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MongoDB  MongoConfig    `mapstructure:"mongodb"`
}

// PostgresConfig configures the Postgres strategy.
type PostgresConfig struct {
	URL   string `mapstructure:"url"`
	Table string `mapstructure:"table"`
}

// RedisConfig configures the Redis strategy.
type RedisConfig struct {
	URL    string `mapstructure:"url"`
	Prefix string `mapstructure:"prefix"`
}

// MongoConfig configures the MongoDB strategy.
type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// ServerConfig configures the observability HTTP listener.
type ServerConfig struct {
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Endpoint   string  `mapstructure:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate"`
}

// DefaultConfig returns the baseline configuration before file and
// environment overrides.
func DefaultConfig() Config {
	return Config{
		Service: ServiceConfig{
			Name:        "lockward",
			Environment: "development",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Lock: LockConfig{
			Name:                    "default",
			TTL:                     30 * time.Second,
			RenewFraction:           1.0 / 3.0,
			OperationTimeout:        3 * time.Second,
			CancellationGracePeriod: 5 * time.Second,
			RenewFailurePolicy:      "fail_fast",
			RestartOnLoss:           true,
			AcquireRetry: RetryConfig{
				Initial:    100 * time.Millisecond,
				Max:        10 * time.Second,
				Multiplier: 2,
			},
		},
		Backend: BackendConfig{
			Type: BackendMemory,
		},
		Server: ServerConfig{
			MetricsAddr: ":9090",
		},
		Tracing: TracingConfig{
			SampleRate: 1,
		},
	}
}
