package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"handreceipt/internal/queue"
	"handreceipt/internal/queue/storage"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newQueue(t *testing.T) (*queue.Queue, *storage.Memory, *fakeClock) {
	t.Helper()
	backend := storage.NewMemory()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	q := queue.New(backend, queue.WithClock(clock.Now))
	q.Load(context.Background())
	return q, backend, clock
}

func sample(id, property, ts string) queue.Transfer {
	return queue.Transfer{
		ID:         id,
		PropertyID: property,
		FromUserID: "alice",
		ToUserID:   "bob",
		Timestamp:  ts,
		Signature:  "sig-" + id,
	}
}

func persisted(t *testing.T, backend *storage.Memory) []queue.Transfer {
	t.Helper()
	raw, ok, err := backend.Get(context.Background(), queue.DefaultKey)
	if err != nil || !ok {
		t.Fatalf("expected persisted queue, ok=%v err=%v", ok, err)
	}
	var items []queue.Transfer
	if err := json.Unmarshal(raw, &items); err != nil {
		t.Fatalf("decode persisted queue: %v", err)
	}
	return items
}

func TestLoadTreatsMalformedPayloadAsEmpty(t *testing.T) {
	ctx := context.Background()
	cases := map[string]string{
		"garbage":      "{not json",
		"object":       `{"id":"x"}`,
		"bad status":   `[{"id":"a","status":"LOST"}]`,
		"duplicate id": `[{"id":"a","status":"PENDING"},{"id":"a","status":"PENDING"}]`,
		"missing id":   `[{"status":"PENDING"}]`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			backend := storage.NewMemory()
			backend.Put(queue.DefaultKey, []byte(payload))
			q := queue.New(backend)

			items := q.Load(ctx)
			if len(items) != 0 {
				t.Fatalf("expected empty queue, got %d items", len(items))
			}
			if q.Len() != 0 {
				t.Fatalf("expected empty mirror, got %d", q.Len())
			}
		})
	}
}

func TestLoadDegradesOnReadError(t *testing.T) {
	backend := storage.NewMemory()
	backend.FailGets(errors.New("disk gone"))
	q := queue.New(backend)
	if items := q.Load(context.Background()); len(items) != 0 {
		t.Fatalf("expected empty queue on read error, got %d", len(items))
	}
}

func TestMalformedPayloadQuarantinedOnce(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	backend.Put(queue.DefaultKey, []byte("{not json"))
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	queue.New(backend, queue.WithClock(clock.Now)).Load(ctx)
	firstKey := fmt.Sprintf("%s.corrupt-%d", queue.DefaultKey, clock.now.UnixNano())
	raw, ok, err := backend.Get(ctx, firstKey)
	if err != nil || !ok || string(raw) != "{not json" {
		t.Fatalf("expected payload copied to %s, got %q ok=%v err=%v", firstKey, raw, ok, err)
	}
	if items := persisted(t, backend); len(items) != 0 {
		t.Fatalf("expected main key reset to an empty list, got %+v", items)
	}

	clock.now = clock.now.Add(time.Minute)
	queue.New(backend, queue.WithClock(clock.Now)).Load(ctx)
	secondKey := fmt.Sprintf("%s.corrupt-%d", queue.DefaultKey, clock.now.UnixNano())
	if _, ok, _ := backend.Get(ctx, secondKey); ok {
		t.Fatalf("second load quarantined the payload again under %s", secondKey)
	}
}

func TestMutationBeforeLoadKeepsPersistedTransfers(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	first := queue.New(backend)
	first.Load(ctx)
	for _, id := range []string{"a", "b"} {
		if _, err := first.Enqueue(ctx, sample(id, "P1", "2026-03-01T10:00:00Z")); err != nil {
			t.Fatalf("Enqueue %s: %v", id, err)
		}
	}

	fresh := queue.New(backend)
	if _, err := fresh.Enqueue(ctx, sample("c", "P1", "2026-03-01T10:05:00Z")); err != nil {
		t.Fatalf("Enqueue before Load: %v", err)
	}
	if n := fresh.Len(); n != 3 {
		t.Fatalf("expected mirror to include stored transfers, got %d", n)
	}
	if items := persisted(t, backend); len(items) != 3 {
		t.Fatalf("expected 3 persisted transfers, got %d", len(items))
	}

	other := queue.New(backend)
	if _, err := other.RetryFailed(ctx); err != nil {
		t.Fatalf("RetryFailed before Load: %v", err)
	}
	if items := persisted(t, backend); len(items) != 3 {
		t.Fatalf("no-op retry rewrote storage: %d transfers left", len(items))
	}
}

func TestMutationRefusedWhileStorageUnreadable(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	seed := queue.New(backend)
	seed.Load(ctx)
	if _, err := seed.Enqueue(ctx, sample("a", "P1", "2026-03-01T10:00:00Z")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	backend.FailGets(errors.New("disk gone"))
	q := queue.New(backend)
	q.Load(ctx)
	if _, err := q.Enqueue(ctx, sample("b", "P1", "2026-03-01T10:01:00Z")); !errors.Is(err, queue.ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded, got %v", err)
	}

	backend.FailGets(nil)
	if _, err := q.Enqueue(ctx, sample("b", "P1", "2026-03-01T10:01:00Z")); err != nil {
		t.Fatalf("Enqueue after storage recovered: %v", err)
	}
	if items := persisted(t, backend); len(items) != 2 {
		t.Fatalf("expected stored transfer kept, got %+v", items)
	}
}

func TestNoOpMutationsDoNotWrite(t *testing.T) {
	ctx := context.Background()
	q, backend, _ := newQueue(t)
	if _, err := q.Enqueue(ctx, sample("a", "P1", "2026-03-01T10:00:00Z")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	backend.FailSets(errors.New("disk full"))
	if n, err := q.RetryFailed(ctx); err != nil || n != 0 {
		t.Fatalf("RetryFailed = %d, %v; expected no write", n, err)
	}
	if n, err := q.ClearFailed(ctx); err != nil || n != 0 {
		t.Fatalf("ClearFailed = %d, %v; expected no write", n, err)
	}
	if n, err := q.RecoverInterrupted(ctx); err != nil || n != 0 {
		t.Fatalf("RecoverInterrupted = %d, %v; expected no write", n, err)
	}
}

func TestLoadRestoresPersistedQueue(t *testing.T) {
	ctx := context.Background()
	backend, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer backend.Close()

	first := queue.New(backend)
	first.Load(ctx)
	if _, err := first.Enqueue(ctx, sample("t1", "P1", "2026-03-01T10:00:00Z")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := first.UpdateStatus(ctx, "t1", queue.StatusFailed, "offline"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	second := queue.New(backend)
	items := second.Load(ctx)
	if len(items) != 1 {
		t.Fatalf("expected 1 restored item, got %d", len(items))
	}
	got := items[0]
	if got.Status != queue.StatusFailed || got.RetryCount != 1 || got.Error != "offline" || got.LastRetry == nil {
		t.Fatalf("unexpected restored transfer: %+v", got)
	}
	if got.Signature != "sig-t1" {
		t.Fatalf("signature not carried through: %q", got.Signature)
	}
}

func TestEnqueueNormalizesNewTransfer(t *testing.T) {
	ctx := context.Background()
	q, backend, clock := newQueue(t)

	in := sample("", "P1", "")
	in.Status = queue.StatusFailed
	in.RetryCount = 7
	in.Error = "stale"
	got, err := q.Enqueue(ctx, in)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if got.ID == "" {
		t.Fatal("expected generated id")
	}
	if got.Status != queue.StatusPending || got.RetryCount != 0 || got.Error != "" || got.LastRetry != nil {
		t.Fatalf("enqueue did not reset bookkeeping: %+v", got)
	}
	if ts, ok := got.CreatedAt(); !ok || !ts.Equal(clock.now) {
		t.Fatalf("expected timestamp from clock, got %q", got.Timestamp)
	}
	if items := persisted(t, backend); len(items) != 1 || items[0].ID != got.ID {
		t.Fatalf("enqueue not persisted: %+v", items)
	}
}

func TestEnqueueRejectsDuplicatesAndInvalid(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newQueue(t)

	if _, err := q.Enqueue(ctx, sample("t1", "P1", "2026-03-01T10:00:00Z")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := q.Enqueue(ctx, sample("t1", "P2", "2026-03-01T10:00:00Z")); !errors.Is(err, queue.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	bad := sample("t2", "", "2026-03-01T10:00:00Z")
	if _, err := q.Enqueue(ctx, bad); !errors.Is(err, queue.ErrInvalidTransfer) {
		t.Fatalf("expected ErrInvalidTransfer for missing property, got %v", err)
	}
	if _, err := q.Enqueue(ctx, sample("t3", "P1", "yesterday")); !errors.Is(err, queue.ErrInvalidTransfer) {
		t.Fatalf("expected ErrInvalidTransfer for timestamp, got %v", err)
	}
	if q.Len() != 1 {
		t.Fatalf("expected only the first transfer queued, got %d", q.Len())
	}
}

func TestUpdateStatusBookkeeping(t *testing.T) {
	ctx := context.Background()
	q, _, clock := newQueue(t)
	if _, err := q.Enqueue(ctx, sample("t1", "P1", "2026-03-01T10:00:00Z")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	syncing, err := q.UpdateStatus(ctx, "t1", queue.StatusSyncing, "")
	if err != nil {
		t.Fatalf("UpdateStatus syncing: %v", err)
	}
	if syncing.RetryCount != 0 || syncing.LastRetry != nil {
		t.Fatalf("SYNCING changed retry bookkeeping: %+v", syncing)
	}

	failed, err := q.UpdateStatus(ctx, "t1", queue.StatusFailed, "")
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if failed.RetryCount != 1 || failed.LastRetry == nil || !failed.LastRetry.Equal(clock.now) {
		t.Fatalf("FAILED bookkeeping wrong: %+v", failed)
	}
	if failed.Error != queue.DefaultFailureMessage {
		t.Fatalf("expected default failure message, got %q", failed.Error)
	}

	clock.now = clock.now.Add(time.Minute)
	again, err := q.UpdateStatus(ctx, "t1", queue.StatusSyncing, "")
	if err != nil {
		t.Fatalf("UpdateStatus resync: %v", err)
	}
	if again.Error != "" {
		t.Fatalf("expected error cleared on non-FAILED transition, got %q", again.Error)
	}
	if again.RetryCount != 1 || again.LastRetry == nil {
		t.Fatalf("non-FAILED transition touched retry bookkeeping: %+v", again)
	}

	if _, err := q.UpdateStatus(ctx, "missing", queue.StatusCompleted, ""); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := q.UpdateStatus(ctx, "t1", queue.Status("LOST"), ""); !errors.Is(err, queue.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestRetryFailedResetsBudget(t *testing.T) {
	ctx := context.Background()
	q, backend, _ := newQueue(t)
	for _, id := range []string{"a", "b", "c"} {
		if _, err := q.Enqueue(ctx, sample(id, "P1", "2026-03-01T10:00:00Z")); err != nil {
			t.Fatalf("Enqueue %s: %v", id, err)
		}
	}
	for _, id := range []string{"a", "b"} {
		for i := 0; i < 3; i++ {
			if _, err := q.UpdateStatus(ctx, id, queue.StatusFailed, "boom"); err != nil {
				t.Fatalf("UpdateStatus: %v", err)
			}
		}
	}
	if got := q.Counts(); got.Failed != 2 || got.Exhausted != 2 || got.Pending != 1 {
		t.Fatalf("unexpected counts before retry: %+v", got)
	}

	reset, err := q.RetryFailed(ctx)
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if reset != 2 {
		t.Fatalf("expected 2 reset, got %d", reset)
	}
	for _, item := range persisted(t, backend) {
		if item.Status != queue.StatusPending || item.RetryCount != 0 || item.Error != "" || item.LastRetry != nil {
			t.Fatalf("transfer %s not fully reset: %+v", item.ID, item)
		}
	}
	if q.FailedCount() != 0 || q.PendingCount() != 3 {
		t.Fatalf("unexpected counts after retry: %+v", q.Counts())
	}
}

func TestClearFailedAndPurgeCompleted(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newQueue(t)
	for _, id := range []string{"a", "b", "c"} {
		if _, err := q.Enqueue(ctx, sample(id, "P1", "2026-03-01T10:00:00Z")); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	if _, err := q.UpdateStatus(ctx, "a", queue.StatusFailed, "x"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if _, err := q.UpdateStatus(ctx, "b", queue.StatusCompleted, ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	cleared, err := q.ClearFailed(ctx)
	if err != nil || cleared != 1 {
		t.Fatalf("ClearFailed = %d, %v", cleared, err)
	}
	purged, err := q.PurgeCompleted(ctx)
	if err != nil || purged != 1 {
		t.Fatalf("PurgeCompleted = %d, %v", purged, err)
	}
	snapshot := q.Snapshot()
	if len(snapshot) != 1 || snapshot[0].ID != "c" {
		t.Fatalf("unexpected remaining queue: %+v", snapshot)
	}
}

func TestSaveFailureLeavesMirrorUntouched(t *testing.T) {
	ctx := context.Background()
	q, backend, _ := newQueue(t)
	if _, err := q.Enqueue(ctx, sample("a", "P1", "2026-03-01T10:00:00Z")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	backend.FailSets(errors.New("disk full"))
	if _, err := q.Enqueue(ctx, sample("b", "P1", "2026-03-01T10:00:00Z")); err == nil {
		t.Fatal("expected enqueue to fail when storage rejects the write")
	}
	if _, err := q.UpdateStatus(ctx, "a", queue.StatusSyncing, ""); err == nil {
		t.Fatal("expected status update to fail when storage rejects the write")
	}
	snapshot := q.Snapshot()
	if len(snapshot) != 1 || snapshot[0].Status != queue.StatusPending {
		t.Fatalf("mirror changed despite failed save: %+v", snapshot)
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newQueue(t)
	if _, err := q.Enqueue(ctx, sample("a", "P1", "2026-03-01T10:00:00Z")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := q.Remove(ctx, "a"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveRejectsDuplicateIDs(t *testing.T) {
	q, _, _ := newQueue(t)
	items := []queue.Transfer{
		{ID: "a", Status: queue.StatusPending},
		{ID: "a", Status: queue.StatusPending},
	}
	if err := q.Save(context.Background(), items); !errors.Is(err, queue.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestRecoverInterrupted(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newQueue(t)
	for _, id := range []string{"a", "b"} {
		if _, err := q.Enqueue(ctx, sample(id, "P1", "2026-03-01T10:00:00Z")); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	if _, err := q.UpdateStatus(ctx, "a", queue.StatusSyncing, ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	recovered, err := q.RecoverInterrupted(ctx)
	if err != nil || recovered != 1 {
		t.Fatalf("RecoverInterrupted = %d, %v", recovered, err)
	}
	if got, _ := q.Get("a"); got.Status != queue.StatusPending {
		t.Fatalf("expected PENDING after recovery, got %s", got.Status)
	}
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newQueue(t)

	var events []queue.Event
	unsubscribe := q.Subscribe(func(e queue.Event) { events = append(events, e) })

	if _, err := q.Enqueue(ctx, sample("a", "P1", "2026-03-01T10:00:00Z")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := q.UpdateStatus(ctx, "a", queue.StatusSyncing, ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	unsubscribe()
	if err := q.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 events before unsubscribe, got %d", len(events))
	}
	if events[0].Kind != queue.EventEnqueued || len(events[0].Snapshot) != 1 {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[1].Kind != queue.EventStatusChanged || events[1].Snapshot[0].Status != queue.StatusSyncing {
		t.Fatalf("unexpected second event: %+v", events[1])
	}
}
