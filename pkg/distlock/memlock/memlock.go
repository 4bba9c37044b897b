// Package memlock implements the lock strategy in process memory. It is the
// default backend for tests, examples and single-node deployments; it
// provides no cross-process exclusion.
package memlock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/lockward/lockward/pkg/distlock"
)

type entry struct {
	owner     string
	expiresAt time.Time
}

// Arbiter holds the lease table shared by all strategies it hands out.
// Workers in the same process contend through one arbiter.
type Arbiter struct {
	mu     sync.Mutex
	leases map[string]entry
}

// NewArbiter creates an empty in-memory lease table.
func NewArbiter() *Arbiter {
	return &Arbiter{leases: make(map[string]entry)}
}

// Strategy returns a strategy bound to one lock key.
func (a *Arbiter) Strategy(key string) *Strategy {
	return &Strategy{arbiter: a, key: strings.TrimSpace(key)}
}

// Strategy implements distlock.Strategy against an Arbiter.
type Strategy struct {
	arbiter *Arbiter
	key     string
}

// New returns a standalone strategy with its own single-key lease table.
func New(key string) *Strategy {
	return NewArbiter().Strategy(key)
}

// Acquire grants or extends the lease. Re-acquiring by the current owner is
// a renewal.
func (s *Strategy) Acquire(ctx context.Context, ttl time.Duration, ownerID string) error {
	if s == nil || s.arbiter == nil {
		return distlock.ErrNotInitialized
	}
	if ttl <= 0 || strings.TrimSpace(ownerID) == "" {
		return distlock.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.arbiter.mu.Lock()
	defer s.arbiter.mu.Unlock()

	now := time.Now()
	current, held := s.arbiter.leases[s.key]
	if held && current.owner != ownerID && now.Before(current.expiresAt) {
		return distlock.ErrLockBusy
	}
	s.arbiter.leases[s.key] = entry{owner: ownerID, expiresAt: now.Add(ttl)}
	return nil
}

// Release drops the lease when ownerID still holds it; stale releases are
// ignored.
func (s *Strategy) Release(ctx context.Context, ownerID string) error {
	if s == nil || s.arbiter == nil {
		return distlock.ErrNotInitialized
	}

	s.arbiter.mu.Lock()
	defer s.arbiter.mu.Unlock()

	if current, held := s.arbiter.leases[s.key]; held && current.owner == ownerID {
		delete(s.arbiter.leases, s.key)
	}
	return nil
}

// HealthCheck always succeeds.
func (s *Strategy) HealthCheck(context.Context) error {
	return nil
}
