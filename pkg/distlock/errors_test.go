package distlock

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lockward/lockward/pkg/health"
)

func TestDefaultClassifier(t *testing.T) {
	if got := DefaultClassifier(fmt.Errorf("%w: bad credentials", ErrFatal)); got != ClassFatal {
		t.Errorf("wrapped fatal classified %v, want fatal", got)
	}
	if got := DefaultClassifier(errTransient); got != ClassRetryable {
		t.Errorf("transient classified %v, want retryable", got)
	}
	if got := DefaultClassifier(errors.New("unlabelled")); got != ClassRetryable {
		t.Errorf("unlabelled classified %v, want retryable", got)
	}
}

func TestDistlockError_WrapsKind(t *testing.T) {
	err := distlockError(ErrInvalidArgument, "ttl must be positive")
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("wrapped error does not match its kind: %v", err)
	}
	if distlockError(ErrClosed, "") != ErrClosed {
		t.Fatal("empty message must return the bare sentinel")
	}
}

func TestNewStrategyHealthChecker(t *testing.T) {
	ctx := context.Background()

	// Strategies without a HealthCheck method always pass.
	plain := NewStrategyHealthChecker("lock-backend", newScriptedStrategy(nil), time.Second)
	if result := plain.Check(ctx); result.Status != health.StatusHealthy {
		t.Fatalf("plain strategy check = %+v, want healthy", result)
	}
	if plain.Name() != "lock-backend" {
		t.Fatalf("checker name = %q", plain.Name())
	}

	unnamed := NewStrategyHealthChecker("  ", newScriptedStrategy(nil), time.Second)
	if unnamed.Name() != defaultStrategyHealthCheckName {
		t.Fatalf("blank name must fall back to %q, got %q", defaultStrategyHealthCheckName, unnamed.Name())
	}

	failing := NewStrategyHealthChecker("lock-backend", checkedStrategy{err: errors.New("down")}, time.Second)
	if result := failing.Check(ctx); result.Status != health.StatusUnhealthy {
		t.Fatalf("failing strategy check = %+v, want unhealthy", result)
	}
}

// checkedStrategy is a Strategy that also exposes backend health.
type checkedStrategy struct {
	err error
}

func (s checkedStrategy) Acquire(context.Context, time.Duration, string) error { return nil }
func (s checkedStrategy) Release(context.Context, string) error                { return nil }
func (s checkedStrategy) HealthCheck(context.Context) error                    { return s.err }
