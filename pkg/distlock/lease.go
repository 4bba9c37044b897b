package distlock

import (
	"sync"
	"time"
)

// LeaseState is the worker-visible ownership status.
type LeaseState int

const (
	StateIdle LeaseState = iota
	StateAcquiring
	StateHeld
	StateRenewing
	StateLost
	StateReleased
)

func (s LeaseState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateHeld:
		return "held"
	case StateRenewing:
		return "renewing"
	case StateLost:
		return "lost"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}

// lease tracks ownership status and the locally computed expiry. It performs
// no I/O. Only the worker goroutine mutates it; concurrent reads go through
// the mutex.
type lease struct {
	mu          sync.Mutex
	state       LeaseState
	lastRenewal time.Time
	deadline    time.Time

	ttl    time.Duration
	margin time.Duration
}

func newLease(ttl, margin time.Duration) *lease {
	effective := ttl - margin
	if effective <= 0 {
		effective = ttl
	}
	return &lease{
		state:  StateIdle,
		ttl:    effective,
		margin: margin,
	}
}

// recordRenewal notes a successful acquire/renew at now and recomputes the
// deadline from it. State changes are driven separately by the worker so
// that every transition is observed exactly once.
func (l *lease) recordRenewal(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastRenewal = now
	l.deadline = now.Add(l.ttl)
}

// markLost invalidates the deadline. Once lost, the lease can only be proven
// again by a fresh acquire.
func (l *lease) markLost() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deadline = time.Time{}
}

func (l *lease) setState(s LeaseState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = s
}

// State returns the current lease state.
func (l *lease) State() LeaseState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Deadline returns the expiry the worker may trust, zero when the lease is
// not provably held.
func (l *lease) Deadline() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.deadline
}

// expired reports whether now is at or past the deadline. A zero deadline is
// always expired.
func (l *lease) expired(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.deadline.IsZero() || !now.Before(l.deadline)
}

// remaining returns the time left until the deadline, clamped at zero.
func (l *lease) remaining(now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.deadline.IsZero() {
		return 0
	}
	left := l.deadline.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}
