package resilience

import "time"

const (
	DefaultBackoffInitial    = 100 * time.Millisecond
	DefaultBackoffMax        = 10 * time.Second
	DefaultBackoffMultiplier = 2.0
)

// BackoffConfig describes an exponential backoff schedule.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// Normalize fills zero fields with defaults.
func (c *BackoffConfig) Normalize() {
	if c.Initial <= 0 {
		c.Initial = DefaultBackoffInitial
	}
	if c.Max <= 0 {
		c.Max = DefaultBackoffMax
	}
	if c.Max < c.Initial {
		c.Max = c.Initial
	}
	if c.Multiplier < 1 {
		c.Multiplier = DefaultBackoffMultiplier
	}
}

// Next returns the delay before the given attempt. Attempt numbering starts
// at 1; attempt 1 waits Initial, each following attempt grows by Multiplier
// up to Max.
func (c BackoffConfig) Next(attempt int) time.Duration {
	c.Normalize()
	if attempt <= 1 {
		return c.Initial
	}

	delay := float64(c.Initial)
	limit := float64(c.Max)
	for idx := 1; idx < attempt; idx++ {
		delay *= c.Multiplier
		if delay >= limit {
			return c.Max
		}
	}
	return time.Duration(delay)
}
