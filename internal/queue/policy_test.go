package queue_test

import (
	"testing"
	"time"

	"handreceipt/internal/queue"
)

func TestRetryPolicyEligible(t *testing.T) {
	policy := queue.DefaultRetryPolicy()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := now.Add(-d)
		return &v
	}

	cases := []struct {
		name     string
		transfer queue.Transfer
		want     bool
	}{
		{"never attempted", queue.Transfer{RetryCount: 0}, true},
		{"failed without lastRetry", queue.Transfer{RetryCount: 1}, true},
		{"inside cooldown", queue.Transfer{RetryCount: 1, LastRetry: at(4*time.Minute + 59*time.Second)}, false},
		{"cooldown boundary", queue.Transfer{RetryCount: 1, LastRetry: at(5 * time.Minute)}, true},
		{"cooldown elapsed", queue.Transfer{RetryCount: 2, LastRetry: at(time.Hour)}, true},
		{"exhausted", queue.Transfer{RetryCount: 3, LastRetry: at(time.Hour)}, false},
		{"over limit", queue.Transfer{RetryCount: 9}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := policy.Eligible(tc.transfer, now); got != tc.want {
				t.Fatalf("Eligible = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRetryPolicyNextAttempt(t *testing.T) {
	policy := queue.RetryPolicy{MaxRetries: 2, Cooldown: time.Minute}
	last := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	next, ok := policy.NextAttempt(queue.Transfer{RetryCount: 1, LastRetry: &last})
	if !ok || !next.Equal(last.Add(time.Minute)) {
		t.Fatalf("NextAttempt = %v, %v", next, ok)
	}
	if _, ok := policy.NextAttempt(queue.Transfer{RetryCount: 2, LastRetry: &last}); ok {
		t.Fatal("expected exhausted transfer to have no next attempt")
	}
}
