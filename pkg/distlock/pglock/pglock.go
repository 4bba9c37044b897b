// Package pglock implements the lock strategy on a Postgres table row.
package pglock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/lockward/lockward/pkg/distlock"
	"github.com/lockward/lockward/pkg/observability/logger"
)

const (
	defaultTable            = "lockward_locks"
	defaultOperationTimeout = 3 * time.Second
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config configures the Postgres strategy.
type Config struct {
	URL              string
	Table            string
	Key              string
	OperationTimeout time.Duration
}

func (c *Config) normalize() {
	if strings.TrimSpace(c.Table) == "" {
		c.Table = defaultTable
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = defaultOperationTimeout
	}
}

// Strategy stores one lease row per lock key. Acquire by the current owner
// extends the row, so re-acquire behaves as a renewal.
type Strategy struct {
	db     *sql.DB
	log    logger.Logger
	config Config
}

// New connects to Postgres, verifies connectivity and ensures the lock
// table exists.
func New(cfg Config, log logger.Logger) (*Strategy, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("postgres url is required")
	}
	if strings.TrimSpace(cfg.Key) == "" {
		return nil, errors.New("lock key is required")
	}
	cfg.normalize()
	if !validTableName.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid lock table name %q", cfg.Table)
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres failed: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.OperationTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres failed: %w", err)
	}

	strategy := &Strategy{db: db, log: log, config: cfg}
	if err := strategy.ensureTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return strategy, nil
}

func newWithDB(db *sql.DB, cfg Config, log logger.Logger) (*Strategy, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if strings.TrimSpace(cfg.Key) == "" {
		return nil, errors.New("lock key is required")
	}
	cfg.normalize()
	if !validTableName.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid lock table name %q", cfg.Table)
	}
	return &Strategy{db: db, log: log, config: cfg}, nil
}

// Acquire upserts the lease row when it is missing, expired, or already
// owned by ownerID.
func (s *Strategy) Acquire(ctx context.Context, ttl time.Duration, ownerID string) error {
	if s == nil || s.db == nil {
		return distlock.ErrNotInitialized
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return fmt.Errorf("%w: owner id is required", distlock.ErrFatal)
	}
	if ttl <= 0 {
		return fmt.Errorf("%w: ttl must be > 0", distlock.ErrFatal)
	}

	opCtx, cancel := s.operationContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`
WITH upsert AS (
	INSERT INTO %s(lock_key, owner_id, expires_at, updated_at)
	VALUES ($1, $2, NOW() + $3 * INTERVAL '1 millisecond', NOW())
	ON CONFLICT(lock_key) DO UPDATE
	SET owner_id = EXCLUDED.owner_id,
	    expires_at = EXCLUDED.expires_at,
	    updated_at = NOW()
	WHERE %s.expires_at <= NOW() OR %s.owner_id = EXCLUDED.owner_id
	RETURNING 1
)
SELECT EXISTS(SELECT 1 FROM upsert)
`, s.config.Table, s.config.Table, s.config.Table)

	var acquired bool
	if err := s.db.QueryRowContext(opCtx, query, s.config.Key, ownerID, ttl.Milliseconds()).Scan(&acquired); err != nil {
		return fmt.Errorf("%w: acquire lock row: %v", distlock.ErrRetryable, err)
	}
	if !acquired {
		return distlock.ErrLockBusy
	}
	return nil
}

// Release deletes the lease row when ownerID still owns it. A stale release
// matches no row and is a no-op.
func (s *Strategy) Release(ctx context.Context, ownerID string) error {
	if s == nil || s.db == nil {
		return distlock.ErrNotInitialized
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return fmt.Errorf("%w: owner id is required", distlock.ErrInvalidArgument)
	}

	opCtx, cancel := s.operationContext(ctx)
	defer cancel()
	query := fmt.Sprintf(`DELETE FROM %s WHERE lock_key = $1 AND owner_id = $2`, s.config.Table)
	if _, err := s.db.ExecContext(opCtx, query, s.config.Key, ownerID); err != nil {
		return fmt.Errorf("%w: release lock row: %v", distlock.ErrRetryable, err)
	}
	return nil
}

// HealthCheck verifies database connectivity.
func (s *Strategy) HealthCheck(ctx context.Context) error {
	if s == nil || s.db == nil {
		return distlock.ErrNotInitialized
	}
	opCtx, cancel := s.operationContext(ctx)
	defer cancel()
	return s.db.PingContext(opCtx)
}

// Close closes the database pool.
func (s *Strategy) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Strategy) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	lock_key TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, s.config.Table)
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *Strategy) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.config.OperationTimeout)
}
