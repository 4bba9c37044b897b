package distlock

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Observer receives lock lifecycle events. Implementations must be safe for
// concurrent use and return quickly; the worker calls them inline.
type Observer interface {
	// StateTransition is invoked for every lease state change.
	StateTransition(lock string, from, to LeaseState, at time.Time)
	// LockLatency reports the duration of one acquire, renew or release
	// call. Outcome is "success", "busy" or "error".
	LockLatency(lock, op string, d time.Duration, outcome string)
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) StateTransition(string, LeaseState, LeaseState, time.Time) {}
func (NopObserver) LockLatency(string, string, time.Duration, string)         {}

const (
	opAcquire = "acquire"
	opRenew   = "renew"
	opRelease = "release"

	outcomeSuccess = "success"
	outcomeBusy    = "busy"
	outcomeError   = "error"
)

var (
	lockTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockward_lock_transitions_total",
			Help: "Total number of lease state transitions",
		},
		[]string{"lock", "from", "to"},
	)

	lockOperationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lockward_lock_operation_seconds",
			Help:    "Latency of lock acquire/renew/release calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"lock", "op", "outcome"},
	)

	lockHeld = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lockward_lock_held",
			Help: "Whether this instance currently holds the lock (1) or not (0)",
		},
		[]string{"lock"},
	)

	lockCancellationTimeoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockward_lock_cancellation_timeouts_total",
			Help: "Total number of tasks that ignored cancellation past the grace period",
		},
		[]string{"lock"},
	)
)

func recordTransition(lock string, from, to LeaseState) {
	lockTransitionsTotal.WithLabelValues(lock, from.String(), to.String()).Inc()
	switch to {
	case StateHeld, StateRenewing:
		lockHeld.WithLabelValues(lock).Set(1)
	default:
		lockHeld.WithLabelValues(lock).Set(0)
	}
}

func recordOperation(lock, op string, d time.Duration, outcome string) {
	lockOperationSeconds.WithLabelValues(lock, op, outcome).Observe(d.Seconds())
}

func recordCancellationTimeout(lock string) {
	lockCancellationTimeoutsTotal.WithLabelValues(lock).Inc()
}
