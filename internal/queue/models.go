package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a queued transfer.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSyncing   Status = "SYNCING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// DefaultFailureMessage is recorded when a submission fails without a reason.
const DefaultFailureMessage = "Transfer failed"

var allStatuses = []Status{StatusPending, StatusSyncing, StatusCompleted, StatusFailed}

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts user input into a Status, accepting any letter case.
func ParseStatus(value string) (Status, bool) {
	candidate := Status(strings.ToUpper(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == candidate {
			return status, true
		}
	}
	return "", false
}

// Transfer is a pending custody change for one property item. The JSON field
// names are the persisted queue format.
type Transfer struct {
	ID         string     `json:"id"`
	PropertyID string     `json:"propertyId"`
	FromUserID string     `json:"fromUserId"`
	ToUserID   string     `json:"toUserId"`
	Timestamp  string     `json:"timestamp"`
	Status     Status     `json:"status"`
	Signature  string     `json:"signature"`
	RetryCount int        `json:"retryCount"`
	Error      string     `json:"error,omitempty"`
	LastRetry  *time.Time `json:"lastRetry,omitempty"`
}

// CreatedAt parses the client timestamp.
func (t Transfer) CreatedAt() (time.Time, bool) {
	parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(t.Timestamp))
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

func (t Transfer) clone() Transfer {
	if t.LastRetry != nil {
		last := *t.LastRetry
		t.LastRetry = &last
	}
	return t
}

func cloneAll(items []Transfer) []Transfer {
	out := make([]Transfer, len(items))
	for i, item := range items {
		out[i] = item.clone()
	}
	return out
}

// Counts is a derived view of the queue grouped by status.
type Counts struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Syncing   int `json:"syncing"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Exhausted int `json:"exhausted"`
}
