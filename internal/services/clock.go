package services

import "time"

// Clock is the time oracle used for order creation and expiry.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Default admissible timeout range, in seconds.
const (
	DefaultMinTimeoutSeconds int64 = 300
	DefaultMaxTimeoutSeconds int64 = 30 * 24 * 3600
)

// TimeoutPolicy is fixed at startup and passed by value.
type TimeoutPolicy struct {
	MinSeconds int64
	MaxSeconds int64
}

func DefaultTimeoutPolicy() TimeoutPolicy {
	return TimeoutPolicy{MinSeconds: DefaultMinTimeoutSeconds, MaxSeconds: DefaultMaxTimeoutSeconds}
}

func (p TimeoutPolicy) Admits(timeoutSeconds int64) bool {
	return timeoutSeconds >= p.MinSeconds && timeoutSeconds <= p.MaxSeconds
}
