package api

import (
	"errors"
	"testing"
	"time"

	"handreceipt/internal/queue"
	"handreceipt/internal/syncer"
)

func TestFromTransferDerivesRetryState(t *testing.T) {
	policy := queue.RetryPolicy{MaxRetries: 3, Cooldown: 5 * time.Minute}
	last := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	failed := queue.Transfer{ID: "a", PropertyID: "P1", Status: queue.StatusFailed, RetryCount: 1, LastRetry: &last, Error: "boom"}
	dto := FromTransfer(failed, policy)
	if dto.RetriesLeft != 2 || dto.Exhausted {
		t.Fatalf("unexpected retry state: %+v", dto)
	}
	if dto.NextRetry != "2026-03-01T12:05:00.000Z" {
		t.Fatalf("unexpected next retry: %q", dto.NextRetry)
	}
	if dto.LastRetry != "2026-03-01T12:00:00.000Z" {
		t.Fatalf("unexpected last retry: %q", dto.LastRetry)
	}

	failed.RetryCount = 3
	dto = FromTransfer(failed, policy)
	if !dto.Exhausted || dto.RetriesLeft != 0 || dto.NextRetry != "" {
		t.Fatalf("expected exhausted transfer, got %+v", dto)
	}

	pending := FromTransfer(queue.Transfer{ID: "b", Status: queue.StatusPending}, policy)
	if pending.Exhausted || pending.NextRetry != "" || pending.RetriesLeft != 3 {
		t.Fatalf("unexpected pending dto: %+v", pending)
	}
}

func TestParseStatuses(t *testing.T) {
	got, err := ParseStatuses([]string{"pending, FAILED", " "})
	if err != nil {
		t.Fatalf("ParseStatuses: %v", err)
	}
	if len(got) != 2 || got[0] != queue.StatusPending || got[1] != queue.StatusFailed {
		t.Fatalf("unexpected statuses: %v", got)
	}
	if _, err := ParseStatuses([]string{"done"}); !errors.Is(err, queue.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestFilterByStatus(t *testing.T) {
	items := []queue.Transfer{
		{ID: "a", Status: queue.StatusPending},
		{ID: "b", Status: queue.StatusFailed},
		{ID: "c", Status: queue.StatusSyncing},
	}
	if got := FilterByStatus(items, nil); len(got) != 3 {
		t.Fatalf("expected no filtering, got %d", len(got))
	}
	got := FilterByStatus(items, []queue.Status{queue.StatusFailed, queue.StatusSyncing})
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "c" {
		t.Fatalf("unexpected filter result: %+v", got)
	}
}

func TestFromSummary(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	dto := FromSummary(syncer.Summary{Trigger: "manual", Ran: true, StartedAt: started, Duration: 1500 * time.Millisecond, Succeeded: 2})
	if dto.DurationMillis != 1500 || dto.StartedAt != "2026-03-01T12:00:00.000Z" || dto.Succeeded != 2 {
		t.Fatalf("unexpected summary dto: %+v", dto)
	}
	if empty := FromSummary(syncer.Summary{Reason: syncer.ReasonOffline}); empty.StartedAt != "" {
		t.Fatalf("expected blank start time, got %q", empty.StartedAt)
	}
}
