// Package redislock implements the lock strategy on Redis keys with PX
// expiry.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lockward/lockward/pkg/distlock"
	"github.com/lockward/lockward/pkg/observability/logger"
)

const (
	defaultPrefix           = "lockward:lock"
	defaultOperationTimeout = 3 * time.Second
)

var (
	// acquireScript grants the key to a new owner or extends it for the
	// current one, making re-acquire an idempotent renewal.
	acquireScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current == false then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
  return 1
end
if current == ARGV[1] then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
  return 1
end
return 0
`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)
)

// Config configures the Redis strategy.
type Config struct {
	URL              string
	Prefix           string
	Key              string
	OperationTimeout time.Duration
}

func (c *Config) normalize() {
	if strings.TrimSpace(c.Prefix) == "" {
		c.Prefix = defaultPrefix
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = defaultOperationTimeout
	}
}

// Strategy implements distlock.Strategy with owner-stamped Redis keys.
type Strategy struct {
	client *redis.Client
	log    logger.Logger
	config Config
}

// New parses the Redis URL, verifies connectivity and returns the strategy.
func New(cfg Config, log logger.Logger) (*Strategy, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("redis url is required")
	}
	if strings.TrimSpace(cfg.Key) == "" {
		return nil, errors.New("lock key is required")
	}
	cfg.normalize()

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url failed: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.OperationTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis failed: %w", err)
	}

	return &Strategy{client: client, log: log, config: cfg}, nil
}

func newWithClient(client *redis.Client, cfg Config, log logger.Logger) (*Strategy, error) {
	if client == nil {
		return nil, errors.New("client is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if strings.TrimSpace(cfg.Key) == "" {
		return nil, errors.New("lock key is required")
	}
	cfg.normalize()
	return &Strategy{client: client, log: log, config: cfg}, nil
}

// Acquire sets or extends the lock key for ownerID.
func (s *Strategy) Acquire(ctx context.Context, ttl time.Duration, ownerID string) error {
	if s == nil || s.client == nil {
		return distlock.ErrNotInitialized
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return fmt.Errorf("%w: owner id is required", distlock.ErrFatal)
	}
	if ttl <= 0 {
		return fmt.Errorf("%w: ttl must be > 0", distlock.ErrFatal)
	}

	opCtx, cancel := context.WithTimeout(ctx, s.config.OperationTimeout)
	defer cancel()
	granted, err := acquireScript.Run(opCtx, s.client, []string{s.fullKey()}, ownerID, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("%w: acquire lock key: %v", distlock.ErrRetryable, err)
	}
	if granted == 0 {
		return distlock.ErrLockBusy
	}
	return nil
}

// Release deletes the key when ownerID still owns it; stale releases match
// nothing.
func (s *Strategy) Release(ctx context.Context, ownerID string) error {
	if s == nil || s.client == nil {
		return distlock.ErrNotInitialized
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return fmt.Errorf("%w: owner id is required", distlock.ErrInvalidArgument)
	}

	opCtx, cancel := context.WithTimeout(ctx, s.config.OperationTimeout)
	defer cancel()
	if err := releaseScript.Run(opCtx, s.client, []string{s.fullKey()}, ownerID).Err(); err != nil {
		return fmt.Errorf("%w: release lock key: %v", distlock.ErrRetryable, err)
	}
	return nil
}

// HealthCheck verifies Redis connectivity.
func (s *Strategy) HealthCheck(ctx context.Context) error {
	if s == nil || s.client == nil {
		return distlock.ErrNotInitialized
	}
	opCtx, cancel := context.WithTimeout(ctx, s.config.OperationTimeout)
	defer cancel()
	return s.client.Ping(opCtx).Err()
}

// Close closes client connections.
func (s *Strategy) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *Strategy) fullKey() string {
	return strings.TrimRight(s.config.Prefix, ":") + ":" + strings.TrimSpace(s.config.Key)
}
