package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Loader loads and validates configuration.
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader implements Loader with precedence ENV > file > defaults.
type ViperLoader struct {
	configFile string
	envPrefix  string
}

// NewViperLoader creates a loader. configFile may be empty; envPrefix
// defaults to LOCKWARD.
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	if strings.TrimSpace(envPrefix) == "" {
		envPrefix = "LOCKWARD"
	}
	return &ViperLoader{configFile: configFile, envPrefix: envPrefix}
}

// Load reads defaults, the optional config file, then environment
// overrides, and validates the result.
func (l *ViperLoader) Load() (*Config, error) {
	v := viper.New()
	l.setDefaults(v, DefaultConfig())

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", l.configFile, err)
		}
	}

	v.SetEnvPrefix(l.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := l.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks cross-field constraints the worker relies on.
func (l *ViperLoader) Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Lock.TTL <= 0 {
		return fmt.Errorf("lock.ttl must be > 0")
	}
	if cfg.Lock.RenewFraction <= 0 || cfg.Lock.RenewFraction >= 1 {
		return fmt.Errorf("lock.renew_fraction must be in (0, 1)")
	}
	if cfg.Lock.ClockSkewMargin < 0 {
		return fmt.Errorf("lock.clock_skew_margin must be >= 0")
	}
	if cfg.Lock.ClockSkewMargin >= cfg.Lock.TTL {
		return fmt.Errorf("lock.clock_skew_margin must be below lock.ttl")
	}
	switch cfg.Lock.RenewFailurePolicy {
	case "fail_fast", "wait_deadline":
	default:
		return fmt.Errorf("unknown lock.renew_failure_policy %q", cfg.Lock.RenewFailurePolicy)
	}

	switch cfg.Backend.Type {
	case BackendMemory:
	case BackendPostgres:
		if strings.TrimSpace(cfg.Backend.Postgres.URL) == "" {
			return fmt.Errorf("backend.postgres.url is required for postgres backend")
		}
	case BackendRedis:
		if strings.TrimSpace(cfg.Backend.Redis.URL) == "" {
			return fmt.Errorf("backend.redis.url is required for redis backend")
		}
	case BackendMongoDB:
		if strings.TrimSpace(cfg.Backend.MongoDB.URI) == "" {
			return fmt.Errorf("backend.mongodb.uri is required for mongodb backend")
		}
	default:
		return fmt.Errorf("unknown backend.type %q", cfg.Backend.Type)
	}

	if cfg.Tracing.Enabled && strings.TrimSpace(cfg.Tracing.Endpoint) == "" {
		return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
	}
	return nil
}

func (l *ViperLoader) setDefaults(v *viper.Viper, defaults Config) {
	v.SetDefault("service.name", defaults.Service.Name)
	v.SetDefault("service.environment", defaults.Service.Environment)

	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)

	v.SetDefault("lock.name", defaults.Lock.Name)
	v.SetDefault("lock.owner_id", defaults.Lock.OwnerID)
	v.SetDefault("lock.ttl", defaults.Lock.TTL)
	v.SetDefault("lock.renew_fraction", defaults.Lock.RenewFraction)
	v.SetDefault("lock.clock_skew_margin", defaults.Lock.ClockSkewMargin)
	v.SetDefault("lock.operation_timeout", defaults.Lock.OperationTimeout)
	v.SetDefault("lock.cancellation_grace_period", defaults.Lock.CancellationGracePeriod)
	v.SetDefault("lock.renew_failure_policy", defaults.Lock.RenewFailurePolicy)
	v.SetDefault("lock.restart_on_loss", defaults.Lock.RestartOnLoss)
	v.SetDefault("lock.acquire_retry.initial", defaults.Lock.AcquireRetry.Initial)
	v.SetDefault("lock.acquire_retry.max", defaults.Lock.AcquireRetry.Max)
	v.SetDefault("lock.acquire_retry.multiplier", defaults.Lock.AcquireRetry.Multiplier)

	v.SetDefault("backend.type", string(defaults.Backend.Type))
	v.SetDefault("backend.postgres.url", defaults.Backend.Postgres.URL)
	v.SetDefault("backend.postgres.table", defaults.Backend.Postgres.Table)
	v.SetDefault("backend.redis.url", defaults.Backend.Redis.URL)
	v.SetDefault("backend.redis.prefix", defaults.Backend.Redis.Prefix)
	v.SetDefault("backend.mongodb.uri", defaults.Backend.MongoDB.URI)
	v.SetDefault("backend.mongodb.database", defaults.Backend.MongoDB.Database)
	v.SetDefault("backend.mongodb.collection", defaults.Backend.MongoDB.Collection)

	v.SetDefault("server.metrics_addr", defaults.Server.MetricsAddr)

	v.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	v.SetDefault("tracing.endpoint", defaults.Tracing.Endpoint)
	v.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
}
