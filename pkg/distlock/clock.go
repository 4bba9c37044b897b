package distlock

import "time"

// Clock abstracts monotonic time so that deadline behavior is testable with
// a controllable clock. The default system clock relies on Go's monotonic
// reading embedded in time.Time, which makes deadline comparisons immune to
// wall-clock jumps.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock returns the real clock used by default.
func SystemClock() Clock {
	return systemClock{}
}
