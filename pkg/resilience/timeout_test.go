package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithTimeout_ReturnsFnResult(t *testing.T) {
	want := errors.New("backend unavailable")
	err := WithTimeout(context.Background(), time.Second, func(context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("got %v, want the function error", err)
	}

	if err := WithTimeout(context.Background(), time.Second, func(context.Context) error {
		return nil
	}); err != nil {
		t.Fatalf("got %v, want nil", err)
	}
}

func TestWithTimeout_DeadlineWins(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
}

func TestWithTimeout_ParentCancellationPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithTimeout(ctx, time.Minute, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestWithTimeout_PassesBoundedContextToFn(t *testing.T) {
	err := WithTimeout(context.Background(), time.Minute, func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("function context has no deadline")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
