package queue

import "time"

const (
	DefaultMaxRetries    = 3
	DefaultRetryCooldown = 5 * time.Minute
)

// RetryPolicy decides when a FAILED transfer may be resent automatically.
type RetryPolicy struct {
	MaxRetries int
	Cooldown   time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: DefaultMaxRetries, Cooldown: DefaultRetryCooldown}
}

// Eligible reports whether t has retry budget left and its cooldown has elapsed.
func (p RetryPolicy) Eligible(t Transfer, now time.Time) bool {
	if p.Exhausted(t) {
		return false
	}
	if t.LastRetry == nil {
		return true
	}
	return now.Sub(*t.LastRetry) >= p.Cooldown
}

// Exhausted reports whether automatic retry has stopped for t.
func (p RetryPolicy) Exhausted(t Transfer) bool {
	return t.RetryCount >= p.MaxRetries
}

// NextAttempt returns when t becomes eligible again. ok is false when automatic
// retry is exhausted.
func (p RetryPolicy) NextAttempt(t Transfer) (at time.Time, ok bool) {
	if p.Exhausted(t) {
		return time.Time{}, false
	}
	if t.LastRetry == nil {
		return time.Time{}, true
	}
	return t.LastRetry.Add(p.Cooldown), true
}
