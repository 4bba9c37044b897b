package distlock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lockward/lockward/pkg/observability/logger"
)

const testWait = 3 * time.Second

type testLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *testLogger) record(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, msg)
}

func (l *testLogger) Debug(msg string, _ ...any) { l.record(msg) }
func (l *testLogger) Info(msg string, _ ...any)  { l.record(msg) }
func (l *testLogger) Warn(msg string, _ ...any)  { l.record(msg) }
func (l *testLogger) Error(msg string, _ ...any) { l.record(msg) }
func (l *testLogger) With(...any) logger.Logger  { return l }

func (l *testLogger) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, entry := range l.entries {
		if entry == substr {
			return true
		}
	}
	return false
}

// fakeClock is a manually driven clock. Timers fire when Advance moves the
// clock past them. With autoFire set, every timer fires immediately, which
// collapses all waiting and lets a worker session run at full speed.
type fakeClock struct {
	mu       sync.Mutex
	now      time.Time
	waiters  []fakeWaiter
	autoFire bool
}

type fakeWaiter struct {
	at time.Time
	ch chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.autoFire || d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, fakeWaiter{at: c.now.Add(d), ch: ch})
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	remaining := c.waiters[:0]
	for _, waiter := range c.waiters {
		if waiter.at.After(c.now) {
			remaining = append(remaining, waiter)
			continue
		}
		waiter.ch <- c.now
	}
	c.waiters = remaining
}

func (c *fakeClock) pendingWaiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// blockUntilWaiters waits in real time until at least n timers are pending,
// so tests can advance the clock without racing timer registration.
func (c *fakeClock) blockUntilWaiters(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(testWait)
	for time.Now().Before(deadline) {
		if c.pendingWaiters() >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d pending clock waiters, have %d", n, c.pendingWaiters())
}

var errTransient = fmt.Errorf("%w: connection reset", ErrRetryable)

// scriptedStrategy returns the scripted outcome for each Acquire call in
// order; after the script is exhausted the last outcome repeats. It also
// verifies that strategy calls are never concurrent.
type scriptedStrategy struct {
	mu        sync.Mutex
	script    []error
	calls     int
	releases  int
	onAcquire func(call int)

	inFlight   atomic.Int32
	concurrent atomic.Bool
}

func newScriptedStrategy(script ...error) *scriptedStrategy {
	return &scriptedStrategy{script: script}
}

func (s *scriptedStrategy) Acquire(ctx context.Context, _ time.Duration, _ string) error {
	if s.inFlight.Add(1) > 1 {
		s.concurrent.Store(true)
	}
	defer s.inFlight.Add(-1)

	s.mu.Lock()
	call := s.calls
	s.calls++
	var outcome error
	if len(s.script) > 0 {
		idx := call
		if idx >= len(s.script) {
			idx = len(s.script) - 1
		}
		outcome = s.script[idx]
	}
	hook := s.onAcquire
	s.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return outcome
}

func (s *scriptedStrategy) Release(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases++
	return nil
}

func (s *scriptedStrategy) stats() (acquires, releases int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, s.releases
}

// recordingObserver captures state transitions with their fake-clock
// timestamps.
type recordingObserver struct {
	mu          sync.Mutex
	transitions []observedTransition
}

type observedTransition struct {
	from, to LeaseState
	at       time.Time
}

func (o *recordingObserver) StateTransition(_ string, from, to LeaseState, at time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, observedTransition{from: from, to: to, at: at})
}

func (o *recordingObserver) LockLatency(string, string, time.Duration, string) {}

func (o *recordingObserver) firstTransitionTo(state LeaseState) (observedTransition, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, tr := range o.transitions {
		if tr.to == state {
			return tr, true
		}
	}
	return observedTransition{}, false
}

func (o *recordingObserver) sawState(state LeaseState) bool {
	_, ok := o.firstTransitionTo(state)
	return ok
}

func waitForState(t *testing.T, w *Worker, want LeaseState) {
	t.Helper()
	deadline := time.Now().Add(testWait)
	for time.Now().Before(deadline) {
		if w.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %s, still %s", want, w.State())
}

// blockingTask runs until its context is cancelled.
func blockingTask(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func startWorker(t *testing.T, w *Worker, ctx context.Context) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Start(ctx)
	}()
	return errCh
}
