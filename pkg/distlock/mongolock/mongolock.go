// Package mongolock implements the lock strategy on a MongoDB document per
// lock key.
package mongolock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lockward/lockward/pkg/distlock"
	"github.com/lockward/lockward/pkg/observability/logger"
)

const (
	defaultDatabase         = "lockward"
	defaultCollection       = "locks"
	defaultOperationTimeout = 3 * time.Second
)

// Config configures the MongoDB strategy.
type Config struct {
	URI              string
	Database         string
	Collection       string
	Key              string
	OperationTimeout time.Duration
}

func (c *Config) normalize() {
	if strings.TrimSpace(c.Database) == "" {
		c.Database = defaultDatabase
	}
	if strings.TrimSpace(c.Collection) == "" {
		c.Collection = defaultCollection
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = defaultOperationTimeout
	}
}

// Strategy implements distlock.Strategy with findOneAndUpdate upserts. The
// lock document is keyed by _id; an upsert conflicting with a live owner
// fails on the unique index, which maps to busy.
type Strategy struct {
	client     *mongo.Client
	collection *mongo.Collection
	log        logger.Logger
	config     Config
}

// New connects to MongoDB and verifies connectivity.
func New(ctx context.Context, cfg Config, log logger.Logger) (*Strategy, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, errors.New("mongodb uri is required")
	}
	if strings.TrimSpace(cfg.Key) == "" {
		return nil, errors.New("lock key is required")
	}
	cfg.normalize()

	connectCtx, cancel := context.WithTimeout(ctx, cfg.OperationTimeout)
	defer cancel()
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb failed: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb failed: %w", err)
	}

	return &Strategy{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		log:        log,
		config:     cfg,
	}, nil
}

// Acquire upserts the lock document when it is absent, expired, or already
// owned by ownerID.
func (s *Strategy) Acquire(ctx context.Context, ttl time.Duration, ownerID string) error {
	if s == nil || s.collection == nil {
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

	now := time.Now().UTC()
	filter := bson.M{
		"_id": s.config.Key,
		"$or": bson.A{
			bson.M{"expires_at": bson.M{"$lte": now}},
			bson.M{"owner_id": ownerID},
		},
	}
	update := bson.M{"$set": bson.M{
		"owner_id":   ownerID,
		"expires_at": now.Add(ttl),
		"updated_at": now,
	}}

	err := s.collection.FindOneAndUpdate(
		opCtx,
		filter,
		update,
		options.FindOneAndUpdate().SetUpsert(true),
	).Err()
	switch {
	case err == nil, errors.Is(err, mongo.ErrNoDocuments):
		// ErrNoDocuments means the upsert inserted a fresh document.
		return nil
	case mongo.IsDuplicateKeyError(err):
		// Another owner holds a live lease; the upsert hit the _id index.
		return distlock.ErrLockBusy
	default:
		return fmt.Errorf("%w: acquire lock document: %v", distlock.ErrRetryable, err)
	}
}

// Release deletes the lock document when ownerID still owns it.
func (s *Strategy) Release(ctx context.Context, ownerID string) error {
	if s == nil || s.collection == nil {
		return distlock.ErrNotInitialized
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return fmt.Errorf("%w: owner id is required", distlock.ErrInvalidArgument)
	}

	opCtx, cancel := context.WithTimeout(ctx, s.config.OperationTimeout)
	defer cancel()
	_, err := s.collection.DeleteOne(opCtx, bson.M{"_id": s.config.Key, "owner_id": ownerID})
	if err != nil {
		return fmt.Errorf("%w: release lock document: %v", distlock.ErrRetryable, err)
	}
	return nil
}

// HealthCheck verifies MongoDB connectivity.
func (s *Strategy) HealthCheck(ctx context.Context) error {
	if s == nil || s.client == nil {
		return distlock.ErrNotInitialized
	}
	opCtx, cancel := context.WithTimeout(ctx, s.config.OperationTimeout)
	defer cancel()
	return s.client.Ping(opCtx, nil)
}

// Close disconnects the client.
func (s *Strategy) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.config.OperationTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}
