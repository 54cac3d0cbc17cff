package api

import (
	"fmt"
	"strings"
	"time"

	"handreceipt/internal/queue"
	"handreceipt/internal/queue/storage"
	"handreceipt/internal/syncer"
)

// FromTransfer converts a queued transfer to its API representation.
func FromTransfer(t queue.Transfer, policy queue.RetryPolicy) QueueItem {
	dto := QueueItem{
		ID:         t.ID,
		PropertyID: t.PropertyID,
		FromUserID: t.FromUserID,
		ToUserID:   t.ToUserID,
		Timestamp:  t.Timestamp,
		Status:     string(t.Status),
		Signature:  t.Signature,
		RetryCount: t.RetryCount,
		Error:      t.Error,
	}
	if left := policy.MaxRetries - t.RetryCount; left > 0 {
		dto.RetriesLeft = left
	}
	if t.LastRetry != nil {
		dto.LastRetry = formatTime(*t.LastRetry)
	}
	if t.Status == queue.StatusFailed {
		dto.Exhausted = policy.Exhausted(t)
		if next, ok := policy.NextAttempt(t); ok && !next.IsZero() {
			dto.NextRetry = formatTime(next)
		}
	}
	return dto
}

// FromTransfers converts a list, keeping queue order.
func FromTransfers(items []queue.Transfer, policy queue.RetryPolicy) []QueueItem {
	out := make([]QueueItem, 0, len(items))
	for _, item := range items {
		out = append(out, FromTransfer(item, policy))
	}
	return out
}

// FromCounts converts queue counts.
func FromCounts(c queue.Counts) QueueCounts {
	return QueueCounts(c)
}

// FromSummary converts a sync pass summary.
func FromSummary(s syncer.Summary) SyncSummary {
	dto := SyncSummary{
		Trigger:        s.Trigger,
		Ran:            s.Ran,
		Reason:         s.Reason,
		DurationMillis: s.Duration.Milliseconds(),
		Attempted:      s.Attempted,
		Succeeded:      s.Succeeded,
		Failed:         s.Failed,
		Skipped:        s.Skipped,
		Exhausted:      s.Exhausted,
		Purged:         s.Purged,
		StoreErrors:    s.StoreErrors,
		Interrupted:    s.Interrupted,
	}
	if !s.StartedAt.IsZero() {
		dto.StartedAt = formatTime(s.StartedAt)
	}
	return dto
}

// FromHealth converts a storage health report.
func FromHealth(h storage.Health) StorageStatus {
	return StorageStatus{
		Backend:   h.Backend,
		Path:      h.Path,
		Exists:    h.Exists,
		Readable:  h.Readable,
		Integrity: h.Integrity,
		Error:     h.Error,
	}
}

// ParseStatuses validates user-supplied status filters. Blank values are
// ignored.
func ParseStatuses(values []string) ([]queue.Status, error) {
	statuses := make([]queue.Status, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, ok := queue.ParseStatus(part)
			if !ok {
				return nil, fmt.Errorf("%w: %q", queue.ErrInvalidStatus, strings.TrimSpace(part))
			}
			statuses = append(statuses, status)
		}
	}
	return statuses, nil
}

// FilterByStatus keeps transfers whose status is listed. An empty filter
// keeps everything.
func FilterByStatus(items []queue.Transfer, statuses []queue.Status) []queue.Transfer {
	if len(statuses) == 0 {
		return items
	}
	out := make([]queue.Transfer, 0, len(items))
	for _, item := range items {
		for _, status := range statuses {
			if item.Status == status {
				out = append(out, item)
				break
			}
		}
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(dateTimeFormat)
}
