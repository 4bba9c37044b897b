package distlock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lockward/lockward/pkg/observability/logger"
	"github.com/lockward/lockward/pkg/observability/tracing"
	"github.com/lockward/lockward/pkg/resilience"
)

const (
	DefaultTTL                     = 30 * time.Second
	DefaultRenewFraction           = 1.0 / 3.0
	DefaultOperationTimeout        = 3 * time.Second
	DefaultCancellationGracePeriod = 5 * time.Second

	minRenewInterval = 10 * time.Millisecond
)

// RenewFailurePolicy decides when a renewal failure detected strictly before
// the deadline drops the lease.
type RenewFailurePolicy string

const (
	// FailFast marks the lease lost as soon as a renewal attempt fails
	// definitively (busy, or retries exhausted). Default.
	FailFast RenewFailurePolicy = "fail_fast"
	// WaitDeadline keeps retrying failed renewals until the deadline itself
	// passes, trading a longer exposure window for fewer interruptions.
	WaitDeadline RenewFailurePolicy = "wait_deadline"
)

// Task is the protected unit of work. It runs only while the lease is held
// and must stop promptly when its context is cancelled. A task that returns
// early, successfully or not, ends the held session; the worker releases the
// lock and proceeds per RestartOnLoss.
type Task func(ctx context.Context) error

// Config controls worker behavior. Values are consumed, not parsed, here;
// see pkg/config for loading.
type Config struct {
	// Name identifies the lock in logs, metrics and traces. The actual
	// backend key is bound at strategy construction.
	Name string
	// OwnerID must be globally unique per worker instance and stable for
	// its lifetime. Defaults to hostname plus a random UUID.
	OwnerID string
	// TTL is the lease duration requested from the strategy.
	TTL time.Duration
	// RenewFraction positions renewal ticks at TTL×RenewFraction.
	RenewFraction float64
	// ClockSkewMargin is subtracted from the lease expiry when computing
	// the local safety deadline. Never negative, must stay below TTL.
	ClockSkewMargin time.Duration
	// OperationTimeout bounds every single strategy call. Renewal attempts
	// are additionally bounded by the time remaining to the deadline.
	OperationTimeout time.Duration
	// AcquireRetry shapes backoff between failed acquire attempts.
	AcquireRetry resilience.BackoffConfig
	// CancellationGracePeriod bounds how long the worker waits for the task
	// to honor cancellation after the lease is lost.
	CancellationGracePeriod time.Duration
	// RenewFailurePolicy selects fail-fast or wait-until-deadline handling
	// of renewal failures.
	RenewFailurePolicy RenewFailurePolicy
	// RestartOnLoss returns the worker to acquisition after losing the
	// lease instead of terminating.
	RestartOnLoss bool
	// Classify maps strategy errors to retryable or fatal. Defaults to
	// DefaultClassifier.
	Classify Classifier
	// Clock is the time source, overridable for tests.
	Clock Clock
	// Observer receives state transitions and latency samples.
	Observer Observer
}

func (c *Config) normalize() error {
	if strings.TrimSpace(c.Name) == "" {
		c.Name = "default"
	}
	if strings.TrimSpace(c.OwnerID) == "" {
		c.OwnerID = defaultOwnerID()
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.RenewFraction <= 0 || c.RenewFraction >= 1 {
		c.RenewFraction = DefaultRenewFraction
	}
	if c.ClockSkewMargin < 0 {
		return distlockError(ErrInvalidArgument, "clock skew margin must be >= 0")
	}
	if c.ClockSkewMargin >= c.TTL {
		return distlockError(ErrInvalidArgument, "clock skew margin must be below ttl")
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = DefaultOperationTimeout
	}
	if c.CancellationGracePeriod <= 0 {
		c.CancellationGracePeriod = DefaultCancellationGracePeriod
	}
	switch c.RenewFailurePolicy {
	case "":
		c.RenewFailurePolicy = FailFast
	case FailFast, WaitDeadline:
	default:
		return distlockError(ErrInvalidArgument, fmt.Sprintf("unknown renew failure policy %q", c.RenewFailurePolicy))
	}
	c.AcquireRetry.Normalize()
	if c.Classify == nil {
		c.Classify = DefaultClassifier
	}
	if c.Clock == nil {
		c.Clock = SystemClock()
	}
	if c.Observer == nil {
		c.Observer = NopObserver{}
	}
	return nil
}

func defaultOwnerID() string {
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		host = "unknown-host"
	}
	return host + "-" + uuid.NewString()
}

// Worker runs the protected task under the strategy's lock, renewing the
// lease and enforcing the local safety deadline.
type Worker struct {
	strategy Strategy
	task     Task
	log      logger.Logger
	config   Config

	lease *lease
	clock Clock

	lifecycleMu sync.Mutex
	running     bool
	cancel      context.CancelFunc
	done        chan struct{}
}

// New creates a worker bound to one strategy and one protected task.
func New(strategy Strategy, task Task, log logger.Logger, cfg Config) (*Worker, error) {
	if strategy == nil {
		return nil, distlockError(ErrInvalidArgument, "strategy is required")
	}
	if task == nil {
		return nil, distlockError(ErrInvalidArgument, "task is required")
	}
	if log == nil {
		return nil, distlockError(ErrInvalidArgument, "logger is required")
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	return &Worker{
		strategy: strategy,
		task:     task,
		log:      log.With("lock", cfg.Name, "owner_id", cfg.OwnerID),
		config:   cfg,
		lease:    newLease(cfg.TTL, cfg.ClockSkewMargin),
		clock:    cfg.Clock,
	}, nil
}

// State returns the current lease state.
func (w *Worker) State() LeaseState {
	if w == nil {
		return StateIdle
	}
	return w.lease.State()
}

// Deadline returns the locally provable lease expiry, zero when not held.
func (w *Worker) Deadline() time.Time {
	if w == nil {
		return time.Time{}
	}
	return w.lease.Deadline()
}

// OwnerID returns the identity this worker locks under.
func (w *Worker) OwnerID() string {
	return w.config.OwnerID
}

// Start runs the worker until ctx is cancelled, Stop is called, or a fatal
// backend error occurs. Only fatal errors are returned; contention and
// transient failures are absorbed internally.
func (w *Worker) Start(ctx context.Context) error {
	if w == nil {
		return distlockError(ErrNotInitialized, "worker is not initialized")
	}
	if ctx == nil {
		return distlockError(ErrInvalidArgument, "context is required")
	}

	w.lifecycleMu.Lock()
	if w.running {
		w.lifecycleMu.Unlock()
		return distlockError(ErrClosed, "worker already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.done = make(chan struct{})
	w.lifecycleMu.Unlock()

	err := w.run(runCtx)

	w.lifecycleMu.Lock()
	w.running = false
	w.cancel = nil
	close(w.done)
	w.lifecycleMu.Unlock()
	return err
}

// Stop requests shutdown and waits for the run loop to finish.
func (w *Worker) Stop(ctx context.Context) error {
	if w == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	w.lifecycleMu.Lock()
	cancel := w.cancel
	done := w.done
	running := w.running
	w.lifecycleMu.Unlock()

	if !running {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// run is the worker state machine. It is the single writer of lease state.
func (w *Worker) run(ctx context.Context) error {
	for {
		w.transition(StateAcquiring)
		if err := w.acquireLoop(ctx); err != nil {
			if ctx.Err() != nil {
				w.transition(StateReleased)
				return nil
			}
			w.transition(StateReleased)
			return err
		}

		outcome := w.holdLease(ctx)
		if outcome.fatal != nil {
			w.transition(StateReleased)
			return outcome.fatal
		}
		if outcome.stopped || !w.config.RestartOnLoss {
			w.transition(StateReleased)
			return nil
		}
		w.transition(StateIdle)
	}
}

// acquireLoop retries the initial acquisition until success, stop, or a
// fatal error. Busy is expected contention and is retried indefinitely.
func (w *Worker) acquireLoop(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		now := w.clock.Now()
		err := w.callStrategy(ctx, opAcquire, w.config.OperationTimeout)
		switch {
		case err == nil:
			w.lease.recordRenewal(now)
			w.transition(StateHeld)
			return nil
		case errors.Is(err, ErrLockBusy):
			w.log.Debug("lock busy, backing off")
		case w.config.Classify(err) == ClassFatal:
			w.log.Error("fatal backend error on acquire", "error", err)
			return err
		default:
			w.log.Warn("acquire failed, backing off", "error", err)
		}

		attempt++
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.clock.After(w.config.AcquireRetry.Next(attempt)):
		}
	}
}

// holdOutcome reports why a held session ended.
type holdOutcome struct {
	stopped bool
	fatal   error
}

// holdLease runs the protected task concurrently with the renewer and tears
// both down when the session ends. On every exit path the lease is marked
// lost before any release attempt.
func (w *Worker) holdLease(ctx context.Context) holdOutcome {
	taskCtx, cancelTask := context.WithCancel(ctx)
	defer cancelTask()

	taskDone := make(chan error, 1)
	go func() {
		taskDone <- w.runTask(taskCtx)
	}()

	res := w.renew(ctx, taskDone)

	w.transition(StateLost)
	cancelTask()

	if res.cause == causeTaskDone {
		w.logTaskResult(res.taskErr)
	} else if timedOut, taskErr := w.awaitTask(taskDone); timedOut {
		w.log.Warn("task ignored cancellation past grace period",
			"grace_period", w.config.CancellationGracePeriod)
		recordCancellationTimeout(w.config.Name)
	} else {
		w.logTaskResult(taskErr)
	}

	w.release()

	return holdOutcome{
		stopped: res.cause == causeStopped,
		fatal:   res.fatalErr,
	}
}

func (w *Worker) runTask(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in protected task: %v; stack=%s", rec, string(debug.Stack()))
		}
	}()
	return w.task(ctx)
}

// awaitTask waits up to the grace period for the task to honor cancellation.
func (w *Worker) awaitTask(taskDone <-chan error) (timedOut bool, taskErr error) {
	select {
	case taskErr = <-taskDone:
		return false, taskErr
	case <-w.clock.After(w.config.CancellationGracePeriod):
		return true, nil
	}
}

func (w *Worker) logTaskResult(err error) {
	if err == nil {
		w.log.Info("protected task finished")
		return
	}
	if errors.Is(err, context.Canceled) {
		w.log.Debug("protected task cancelled")
		return
	}
	// Task failures are never lock-related and never affect lease state.
	w.log.Error("protected task failed", "error", err)
}

// release is best-effort and runs on a detached context because the worker
// context is usually already cancelled here.
func (w *Worker) release() {
	releaseCtx, cancel := context.WithTimeout(context.Background(), w.config.OperationTimeout)
	defer cancel()

	start := w.clock.Now()
	_, span := tracing.StartLockSpan(releaseCtx, tracing.SpanOperationLockRelease, w.config.Name, w.config.OwnerID)
	defer span.End()

	err := w.strategy.Release(releaseCtx, w.config.OwnerID)
	elapsed := w.clock.Now().Sub(start)
	if err != nil {
		tracing.RecordError(span, err)
		recordOperation(w.config.Name, opRelease, elapsed, outcomeError)
		w.config.Observer.LockLatency(w.config.Name, opRelease, elapsed, outcomeError)
		w.log.Warn("lock release failed", "error", err)
		return
	}
	tracing.RecordSuccess(span)
	recordOperation(w.config.Name, opRelease, elapsed, outcomeSuccess)
	w.config.Observer.LockLatency(w.config.Name, opRelease, elapsed, outcomeSuccess)
}

// callStrategy performs one bounded acquire (initial or renewal) and records
// latency, metrics and a span for it.
func (w *Worker) callStrategy(ctx context.Context, op string, timeout time.Duration) error {
	spanOp := tracing.SpanOperationLockAcquire
	if op == opRenew {
		spanOp = tracing.SpanOperationLockRenew
	}
	spanCtx, span := tracing.StartLockSpan(ctx, spanOp, w.config.Name, w.config.OwnerID)
	defer span.End()

	start := w.clock.Now()
	err := resilience.WithTimeout(spanCtx, timeout, func(callCtx context.Context) error {
		return w.strategy.Acquire(callCtx, w.config.TTL, w.config.OwnerID)
	})
	elapsed := w.clock.Now().Sub(start)

	outcome := outcomeSuccess
	switch {
	case err == nil:
		tracing.RecordSuccess(span)
	case errors.Is(err, ErrLockBusy):
		outcome = outcomeBusy
		tracing.RecordError(span, err)
	default:
		outcome = outcomeError
		tracing.RecordError(span, err)
	}
	recordOperation(w.config.Name, op, elapsed, outcome)
	w.config.Observer.LockLatency(w.config.Name, op, elapsed, outcome)
	return err
}

// transition moves the lease state and emits the change to the log, metrics
// and the observer. Called only from the run goroutine.
func (w *Worker) transition(to LeaseState) {
	from := w.lease.State()
	if from == to {
		return
	}
	if to == StateLost {
		w.lease.markLost()
	}
	w.lease.setState(to)

	at := w.clock.Now()
	w.log.Debug("lease state transition", "from", from.String(), "to", to.String())
	recordTransition(w.config.Name, from, to)
	w.config.Observer.StateTransition(w.config.Name, from, to, at)
}
