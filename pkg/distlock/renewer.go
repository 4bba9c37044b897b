package distlock

import (
	"context"
	"errors"
	"time"
)

type renewCause int

const (
	// causeStopped: the worker context was cancelled.
	causeStopped renewCause = iota
	// causeTaskDone: the protected task returned while the lease was held.
	causeTaskDone
	// causeLost: the lease could not be proven valid anymore.
	causeLost
	// causeFatal: the backend reported a non-retryable failure.
	causeFatal
)

type renewResult struct {
	cause    renewCause
	taskErr  error
	fatalErr error
}

// renew drives the renewal/watchdog loop while the lease is held. It is the
// only renewal path, so renewal attempts are single-flight by construction.
// The local clock is authoritative: a renewal result arriving after the
// deadline has passed is discarded.
func (w *Worker) renew(ctx context.Context, taskDone <-chan error) renewResult {
	interval := w.renewInterval()
	wait := interval
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			return renewResult{cause: causeStopped}
		case taskErr := <-taskDone:
			return renewResult{cause: causeTaskDone, taskErr: taskErr}
		case <-w.clock.After(wait):
		}

		now := w.clock.Now()
		if w.lease.expired(now) {
			w.log.Warn("lease deadline passed before renewal", "deadline", w.lease.Deadline())
			return renewResult{cause: causeLost}
		}

		w.transition(StateRenewing)

		renewedAt := now
		err := w.callStrategy(ctx, opRenew, w.renewTimeout(now))

		if w.lease.expired(w.clock.Now()) {
			// The result, whatever it was, arrived past the deadline and
			// cannot be trusted.
			w.log.Warn("renewal result discarded, deadline passed during attempt")
			return renewResult{cause: causeLost}
		}

		switch {
		case err == nil:
			w.lease.recordRenewal(renewedAt)
			w.transition(StateHeld)
			attempt = 0
			wait = interval

		case errors.Is(err, ErrLockBusy):
			if w.config.RenewFailurePolicy == WaitDeadline {
				w.log.Warn("renewal rejected, lock busy, retrying until deadline", "error", err)
				attempt++
				wait = w.boundedRetryWait(attempt)
				continue
			}
			w.log.Warn("renewal rejected, lock taken by another owner")
			return renewResult{cause: causeLost}

		case w.config.Classify(err) == ClassFatal:
			w.log.Error("fatal backend error on renewal", "error", err)
			return renewResult{cause: causeFatal, fatalErr: err}

		default:
			w.log.Warn("renewal attempt failed, retrying within deadline budget", "error", err)
			attempt++
			wait = w.boundedRetryWait(attempt)
		}

		if ctx.Err() != nil {
			return renewResult{cause: causeStopped}
		}
	}
}

func (w *Worker) renewInterval() time.Duration {
	interval := time.Duration(float64(w.config.TTL) * w.config.RenewFraction)
	if interval < minRenewInterval {
		interval = minRenewInterval
	}
	return interval
}

// renewTimeout bounds one renewal attempt so a slow backend call cannot keep
// the watchdog from checking the deadline on schedule. It is always strictly
// smaller than the time remaining to the deadline.
func (w *Worker) renewTimeout(now time.Time) time.Duration {
	timeout := w.config.OperationTimeout
	if remaining := w.lease.remaining(now); remaining > 0 && timeout >= remaining {
		timeout = remaining - remaining/10
	}
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	return timeout
}

// boundedRetryWait backs off between failed renewal attempts without ever
// sleeping past the deadline check.
func (w *Worker) boundedRetryWait(attempt int) time.Duration {
	wait := w.config.AcquireRetry.Next(attempt)
	if remaining := w.lease.remaining(w.clock.Now()); remaining > 0 && wait > remaining {
		wait = remaining
	}
	return wait
}
