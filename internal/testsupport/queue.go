package testsupport

import (
	"context"
	"testing"

	"handreceipt/internal/config"
	"handreceipt/internal/queue"
	"handreceipt/internal/queue/storage"
)

// MustOpenQueue opens the configured backend, loads a Queue over it, and
// registers cleanup.
func MustOpenQueue(t testing.TB, cfg *config.Config, opts ...queue.Option) (*queue.Queue, storage.Backend) {
	t.Helper()

	backend, err := storage.Open(cfg)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = backend.Close()
	})
	opts = append([]queue.Option{queue.WithKey(cfg.Storage.Key)}, opts...)
	q := queue.New(backend, opts...)
	q.Load(context.Background())
	return q, backend
}

// NewTransfer enqueues a PENDING transfer for property with a fixed pair of
// users.
func NewTransfer(t testing.TB, q *queue.Queue, property, timestamp string) queue.Transfer {
	t.Helper()

	item, err := q.Enqueue(context.Background(), queue.Transfer{
		PropertyID: property,
		FromUserID: "user-from",
		ToUserID:   "user-to",
		Timestamp:  timestamp,
	})
	if err != nil {
		t.Fatalf("queue.Enqueue: %v", err)
	}
	return item
}
