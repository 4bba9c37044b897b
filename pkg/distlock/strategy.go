// Package distlock runs a caller-supplied task under a distributed lock so
// that at most one instance of a fleet executes it at any time. Mutual
// exclusion across instances is delegated entirely to a pluggable Strategy;
// the worker guarantees it never keeps the task running past the locally
// provable lease expiry.
package distlock

import (
	"context"
	"time"
)

// Strategy is the arbitration capability the worker consumes. Concrete
// backends live in the pglock, redislock, mongolock and memlock subpackages;
// host applications may supply their own.
//
// Acquire returns nil when ownerID holds the lease for ttl from now,
// ErrLockBusy when another owner holds it, and any other error on backend
// failure (wrap with ErrRetryable or ErrFatal for classification). Calling
// Acquire for an owner that already holds the lease must behave as a
// renewal: the expiry is extended, the call succeeds.
//
// Release is best-effort. A stale release (wrong or expired owner) must be
// ignored by the backend; the worker logs release failures and never treats
// them as fatal.
type Strategy interface {
	Acquire(ctx context.Context, ttl time.Duration, ownerID string) error
	Release(ctx context.Context, ownerID string) error
}
