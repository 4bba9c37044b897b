package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubChecker struct {
	name   string
	status Status
}

func (c stubChecker) Name() string { return c.name }

func (c stubChecker) Check(context.Context) CheckResult {
	return CheckResult{Name: c.name, Status: c.status, Timestamp: time.Now()}
}

func TestRegistry_CheckAll(t *testing.T) {
	registry := NewRegistry()
	registry.Register(stubChecker{name: "backend", status: StatusHealthy})
	registry.Register(stubChecker{name: "broker", status: StatusUnhealthy})

	results := registry.CheckAll(context.Background())
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results["backend"].Status != StatusHealthy {
		t.Errorf("backend = %s, want healthy", results["backend"].Status)
	}
	if results["broker"].Status != StatusUnhealthy {
		t.Errorf("broker = %s, want unhealthy", results["broker"].Status)
	}
}

func TestRegistry_HealthyRequiresAllChecks(t *testing.T) {
	registry := NewRegistry()
	if !registry.Healthy(context.Background()) {
		t.Fatal("empty registry must report healthy")
	}

	registry.Register(stubChecker{name: "backend", status: StatusHealthy})
	if !registry.Healthy(context.Background()) {
		t.Fatal("all-healthy registry must report healthy")
	}

	registry.Register(stubChecker{name: "broker", status: StatusUnhealthy})
	if registry.Healthy(context.Background()) {
		t.Fatal("one unhealthy check must fail the registry")
	}
}

func TestRegistry_RegisterReplacesByName(t *testing.T) {
	registry := NewRegistry()
	registry.Register(stubChecker{name: "backend", status: StatusUnhealthy})
	registry.Register(stubChecker{name: "backend", status: StatusHealthy})

	if !registry.Healthy(context.Background()) {
		t.Fatal("re-registering a name must replace the previous checker")
	}
}

type checkableStub struct {
	err   error
	block bool
}

func (c checkableStub) HealthCheck(ctx context.Context) error {
	if c.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return c.err
}

func TestAdapterChecker_ReportsAdapterState(t *testing.T) {
	healthy := NewAdapterChecker("backend", checkableStub{}, time.Second)
	result := healthy.Check(context.Background())
	if result.Status != StatusHealthy || result.Error != "" {
		t.Fatalf("result = %+v, want healthy", result)
	}

	failing := NewAdapterChecker("backend", checkableStub{err: errors.New("connection refused")}, time.Second)
	result = failing.Check(context.Background())
	if result.Status != StatusUnhealthy {
		t.Fatalf("result = %+v, want unhealthy", result)
	}
	if result.Error == "" {
		t.Fatal("unhealthy result must carry the error text")
	}
}

func TestAdapterChecker_BoundsSlowChecks(t *testing.T) {
	checker := NewAdapterChecker("backend", checkableStub{block: true}, 10*time.Millisecond)
	result := checker.Check(context.Background())
	if result.Status != StatusUnhealthy {
		t.Fatalf("slow check must time out unhealthy, got %+v", result)
	}
}
