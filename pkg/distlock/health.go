package distlock

import (
	"context"
	"strings"
	"time"

	"github.com/lockward/lockward/pkg/health"
)

const defaultStrategyHealthCheckName = "distlock-strategy"

// NewStrategyHealthChecker creates a standard health checker for a lock
// strategy. Strategies without a HealthCheck method always report healthy.
func NewStrategyHealthChecker(name string, strategy Strategy, timeout time.Duration) health.Checker {
	checkName := strings.TrimSpace(name)
	if checkName == "" {
		checkName = defaultStrategyHealthCheckName
	}
	checkable, ok := strategy.(health.Checkable)
	if !ok {
		checkable = checkableFunc(func(context.Context) error { return nil })
	}
	return health.NewAdapterChecker(checkName, checkable, timeout)
}

type checkableFunc func(ctx context.Context) error

func (f checkableFunc) HealthCheck(ctx context.Context) error {
	return f(ctx)
}
