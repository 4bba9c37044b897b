package mongolock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lockward/lockward/pkg/distlock"
	"github.com/lockward/lockward/pkg/observability/logger"
)

func TestConfig_NormalizeDefaults(t *testing.T) {
	cfg := Config{}
	cfg.normalize()
	if cfg.Database != defaultDatabase {
		t.Errorf("database = %q, want %q", cfg.Database, defaultDatabase)
	}
	if cfg.Collection != defaultCollection {
		t.Errorf("collection = %q, want %q", cfg.Collection, defaultCollection)
	}
	if cfg.OperationTimeout != defaultOperationTimeout {
		t.Errorf("operation timeout = %v, want %v", cfg.OperationTimeout, defaultOperationTimeout)
	}
}

func TestNew_ValidatesConfig(t *testing.T) {
	ctx := context.Background()

	if _, err := New(ctx, Config{URI: "mongodb://localhost", Key: "reports"}, nil); err == nil {
		t.Fatal("expected error for nil logger")
	}
	if _, err := New(ctx, Config{Key: "reports"}, logger.Nop()); err == nil {
		t.Fatal("expected error for missing uri")
	}
	if _, err := New(ctx, Config{URI: "mongodb://localhost"}, logger.Nop()); err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestStrategy_UninitializedOperations(t *testing.T) {
	var s *Strategy
	ctx := context.Background()

	if err := s.Acquire(ctx, time.Minute, "owner-a"); !errors.Is(err, distlock.ErrNotInitialized) {
		t.Fatalf("expected not initialized from acquire, got %v", err)
	}
	if err := s.Release(ctx, "owner-a"); !errors.Is(err, distlock.ErrNotInitialized) {
		t.Fatalf("expected not initialized from release, got %v", err)
	}
	if err := s.HealthCheck(ctx); !errors.Is(err, distlock.ErrNotInitialized) {
		t.Fatalf("expected not initialized from health check, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close on nil strategy must be a no-op, got %v", err)
	}
}
