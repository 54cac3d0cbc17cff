package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"handreceipt/internal/logging"
	"handreceipt/internal/queue/storage"
)

// DefaultKey is the storage key holding the serialized queue.
const DefaultKey = "@transfer_queue"

// Queue owns the ordered list of transfers. Every mutation persists the full
// list before the in-memory mirror changes; if the write fails the mirror is
// left untouched and the error is returned.
type Queue struct {
	mu      sync.Mutex
	backend storage.Backend
	key     string
	items   []Transfer
	loaded  bool
	policy  RetryPolicy
	now     func() time.Time
	logger  *slog.Logger

	subsMu  sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// Option customizes a Queue.
type Option func(*Queue)

// WithKey overrides the storage key.
func WithKey(key string) Option {
	return func(q *Queue) {
		if strings.TrimSpace(key) != "" {
			q.key = key
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = logging.NewComponentLogger(logger, "queue")
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// WithPolicy sets the retry policy used for exhausted counts.
func WithPolicy(policy RetryPolicy) Option {
	return func(q *Queue) {
		q.policy = policy
	}
}

// New constructs a Queue over backend. Call Load before use to pick up
// persisted state.
func New(backend storage.Backend, opts ...Option) *Queue {
	q := &Queue{
		backend: backend,
		key:     DefaultKey,
		policy:  DefaultRetryPolicy(),
		now:     time.Now,
		logger:  logging.NewComponentLogger(nil, "queue"),
		subs:    make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Policy returns the retry policy the queue was built with.
func (q *Queue) Policy() RetryPolicy {
	return q.policy
}

// Load reads the persisted list into the mirror. Absent, unreadable, or
// malformed content yields an empty queue. A malformed payload is moved to a
// sibling key so it can be inspected later. After a read error the queue stays
// unloaded and the next mutation retries the read.
func (q *Queue) Load(ctx context.Context) []Transfer {
	q.mu.Lock()
	items, err := q.readLocked(ctx)
	if err != nil {
		logging.WarnWithContext(q.logger, "queue load failed; starting empty", "queue_load_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check storage path permissions"),
			logging.String(logging.FieldImpact, "previously queued transfers are not visible"),
		)
		items = []Transfer{}
		q.loaded = false
	} else {
		q.loaded = true
	}
	q.items = items
	snapshot := cloneAll(items)
	q.mu.Unlock()

	q.publish(EventLoaded, snapshot)
	return cloneAll(snapshot)
}

// readLocked returns the persisted list. Only a backend read failure is an
// error; malformed content is quarantined and reads as empty.
func (q *Queue) readLocked(ctx context.Context) ([]Transfer, error) {
	raw, ok, err := q.backend.Get(ctx, q.key)
	if err != nil {
		return nil, err
	}
	if !ok || len(strings.TrimSpace(string(raw))) == 0 {
		return []Transfer{}, nil
	}
	items, err := decode(raw)
	if err != nil {
		q.quarantineLocked(ctx, raw, err)
		return []Transfer{}, nil
	}
	return items, nil
}

// quarantineLocked copies raw to a sibling key and resets the main key to an
// empty list so later loads do not copy it again. If the copy fails the main
// key is left as is.
func (q *Queue) quarantineLocked(ctx context.Context, raw []byte, cause error) {
	quarantine := fmt.Sprintf("%s.corrupt-%d", q.key, q.now().UnixNano())
	if err := q.backend.Set(ctx, quarantine, raw); err != nil {
		logging.WarnWithContext(q.logger, "queue payload malformed; quarantine failed", "queue_payload_malformed",
			logging.Error(cause),
			logging.String("quarantine_error", err.Error()),
			logging.String(logging.FieldErrorHint, "check storage health with 'handreceipt status'"),
			logging.String(logging.FieldImpact, "unreadable transfers are not retried"),
		)
		return
	}
	if err := q.backend.Set(ctx, q.key, []byte("[]")); err != nil {
		q.logger.Debug("reset malformed queue key failed", logging.Error(err))
	}
	logging.WarnWithContext(q.logger, "queue payload malformed; starting empty", "queue_payload_malformed",
		logging.Error(cause),
		logging.String("quarantine_key", quarantine),
		logging.String(logging.FieldErrorHint, "inspect the quarantined payload"),
		logging.String(logging.FieldImpact, "unreadable transfers are not retried"),
	)
}

func decode(raw []byte) ([]Transfer, error) {
	var items []Transfer
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode queue: %w", err)
	}
	if items == nil {
		items = []Transfer{}
	}
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		if strings.TrimSpace(item.ID) == "" {
			return nil, fmt.Errorf("decode queue: entry %d: %w: missing id", i, ErrInvalidTransfer)
		}
		if _, dup := seen[item.ID]; dup {
			return nil, fmt.Errorf("decode queue: %w: %s", ErrDuplicateID, item.ID)
		}
		seen[item.ID] = struct{}{}
		if _, ok := ParseStatus(string(item.Status)); !ok {
			return nil, fmt.Errorf("decode queue: entry %s: %w: %q", item.ID, ErrInvalidStatus, item.Status)
		}
	}
	return items, nil
}

// Save overwrites the persisted list and the mirror.
func (q *Queue) Save(ctx context.Context, items []Transfer) error {
	if err := validateUnique(items); err != nil {
		return err
	}
	return q.mutate(ctx, EventSaved, func([]Transfer) ([]Transfer, error) {
		return cloneAll(items), nil
	})
}

// Enqueue appends t as a new PENDING transfer with no retries. An empty id is
// replaced with a random UUID and an empty timestamp with the current time.
func (q *Queue) Enqueue(ctx context.Context, t Transfer) (Transfer, error) {
	t.ID = strings.TrimSpace(t.ID)
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if strings.TrimSpace(t.Timestamp) == "" {
		t.Timestamp = q.now().UTC().Format(time.RFC3339Nano)
	}
	if err := validateNew(t); err != nil {
		return Transfer{}, err
	}
	t.Status = StatusPending
	t.RetryCount = 0
	t.Error = ""
	t.LastRetry = nil

	err := q.mutate(ctx, EventEnqueued, func(items []Transfer) ([]Transfer, error) {
		if indexOf(items, t.ID) >= 0 {
			return nil, fmt.Errorf("enqueue %s: %w", t.ID, ErrDuplicateID)
		}
		return append(items, t), nil
	})
	if err != nil {
		return Transfer{}, err
	}
	return t.clone(), nil
}

// Remove deletes the transfer with id.
func (q *Queue) Remove(ctx context.Context, id string) error {
	return q.mutate(ctx, EventRemoved, func(items []Transfer) ([]Transfer, error) {
		idx := indexOf(items, id)
		if idx < 0 {
			return nil, fmt.Errorf("remove %s: %w", id, ErrNotFound)
		}
		return append(items[:idx], items[idx+1:]...), nil
	})
}

// UpdateStatus moves the transfer with id to status. Entering FAILED stamps
// lastRetry and increments retryCount; other transitions leave both alone and
// clear the error message.
func (q *Queue) UpdateStatus(ctx context.Context, id string, status Status, message string) (Transfer, error) {
	if _, ok := ParseStatus(string(status)); !ok {
		return Transfer{}, fmt.Errorf("update %s: %w: %q", id, ErrInvalidStatus, status)
	}
	var updated Transfer
	err := q.mutate(ctx, EventStatusChanged, func(items []Transfer) ([]Transfer, error) {
		idx := indexOf(items, id)
		if idx < 0 {
			return nil, fmt.Errorf("update %s: %w", id, ErrNotFound)
		}
		item := items[idx]
		item.Status = status
		if status == StatusFailed {
			now := q.now().UTC()
			item.LastRetry = &now
			item.RetryCount++
			item.Error = strings.TrimSpace(message)
			if item.Error == "" {
				item.Error = DefaultFailureMessage
			}
		} else {
			item.Error = ""
		}
		items[idx] = item
		updated = item.clone()
		return items, nil
	})
	if err != nil {
		return Transfer{}, err
	}
	return updated, nil
}

// RetryFailed resets every FAILED transfer to PENDING with a fresh retry
// budget. Manual retry is not bounded by the retry policy.
func (q *Queue) RetryFailed(ctx context.Context) (int, error) {
	reset := 0
	err := q.mutate(ctx, EventRetried, func(items []Transfer) ([]Transfer, error) {
		for i := range items {
			if items[i].Status != StatusFailed {
				continue
			}
			items[i].Status = StatusPending
			items[i].RetryCount = 0
			items[i].Error = ""
			items[i].LastRetry = nil
			reset++
		}
		return items, nil
	})
	if err != nil {
		return 0, err
	}
	return reset, nil
}

// ClearFailed removes every FAILED transfer.
func (q *Queue) ClearFailed(ctx context.Context) (int, error) {
	return q.removeWhere(ctx, EventCleared, func(t Transfer) bool { return t.Status == StatusFailed })
}

// PurgeCompleted removes every COMPLETED transfer.
func (q *Queue) PurgeCompleted(ctx context.Context) (int, error) {
	return q.removeWhere(ctx, EventPurged, func(t Transfer) bool { return t.Status == StatusCompleted })
}

// RecoverInterrupted returns transfers left SYNCING by an interrupted pass to
// PENDING. Their retry bookkeeping is untouched.
func (q *Queue) RecoverInterrupted(ctx context.Context) (int, error) {
	recovered := 0
	err := q.mutate(ctx, EventRecovered, func(items []Transfer) ([]Transfer, error) {
		for i := range items {
			if items[i].Status == StatusSyncing {
				items[i].Status = StatusPending
				recovered++
			}
		}
		return items, nil
	})
	if err != nil {
		return 0, err
	}
	return recovered, nil
}

func (q *Queue) removeWhere(ctx context.Context, kind EventKind, match func(Transfer) bool) (int, error) {
	removed := 0
	err := q.mutate(ctx, kind, func(items []Transfer) ([]Transfer, error) {
		kept := items[:0]
		for _, item := range items {
			if match(item) {
				removed++
				continue
			}
			kept = append(kept, item)
		}
		return kept, nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// mutate applies fn to a copy of the mirror, persists the result, and only
// then swaps it in. Unchanged lists are not rewritten. A queue that has not
// been loaded reads storage first so a mutation never overwrites transfers it
// has not seen.
func (q *Queue) mutate(ctx context.Context, kind EventKind, fn func([]Transfer) ([]Transfer, error)) error {
	q.mu.Lock()
	if !q.loaded {
		items, err := q.readLocked(ctx)
		if err != nil {
			q.mu.Unlock()
			return fmt.Errorf("%w: %v", ErrNotLoaded, err)
		}
		q.items = items
		q.loaded = true
	}
	current, err := json.Marshal(q.items)
	if err != nil {
		q.mu.Unlock()
		return fmt.Errorf("encode queue: %w", err)
	}
	next, err := fn(cloneAll(q.items))
	if err != nil {
		q.mu.Unlock()
		return err
	}
	if next == nil {
		next = []Transfer{}
	}
	payload, err := json.Marshal(next)
	if err != nil {
		q.mu.Unlock()
		return fmt.Errorf("encode queue: %w", err)
	}
	if bytes.Equal(current, payload) {
		q.mu.Unlock()
		return nil
	}
	if err := q.backend.Set(ctx, q.key, payload); err != nil {
		q.mu.Unlock()
		logging.WarnWithContext(q.logger, "queue save failed; change discarded", "queue_save_failed",
			logging.String("event", string(kind)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check storage health with 'handreceipt status'"),
			logging.String(logging.FieldImpact, "queue state was not changed"),
		)
		return fmt.Errorf("save queue: %w", err)
	}
	q.items = next
	snapshot := cloneAll(next)
	q.mu.Unlock()

	q.publish(kind, snapshot)
	return nil
}

// Snapshot returns a copy of the queue in insertion order.
func (q *Queue) Snapshot() []Transfer {
	q.mu.Lock()
	defer q.mu.Unlock()
	return cloneAll(q.items)
}

// Get returns the transfer with id.
func (q *Queue) Get(id string) (Transfer, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := indexOf(q.items, id)
	if idx < 0 {
		return Transfer{}, false
	}
	return q.items[idx].clone(), true
}

// Len returns the number of queued transfers.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Counts tallies the queue by status.
func (q *Queue) Counts() Counts {
	q.mu.Lock()
	defer q.mu.Unlock()
	return tally(q.items, q.policy)
}

// PendingCount returns how many transfers await submission.
func (q *Queue) PendingCount() int {
	return q.Counts().Pending
}

// FailedCount returns how many transfers are FAILED, exhausted or not.
func (q *Queue) FailedCount() int {
	return q.Counts().Failed
}

// Tally computes Counts for an arbitrary list.
func Tally(items []Transfer, policy RetryPolicy) Counts {
	return tally(items, policy)
}

func tally(items []Transfer, policy RetryPolicy) Counts {
	counts := Counts{Total: len(items)}
	for _, item := range items {
		switch item.Status {
		case StatusPending:
			counts.Pending++
		case StatusSyncing:
			counts.Syncing++
		case StatusCompleted:
			counts.Completed++
		case StatusFailed:
			counts.Failed++
			if policy.Exhausted(item) {
				counts.Exhausted++
			}
		}
	}
	return counts
}

func indexOf(items []Transfer, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func validateNew(t Transfer) error {
	var missing []string
	if strings.TrimSpace(t.PropertyID) == "" {
		missing = append(missing, "propertyId")
	}
	if strings.TrimSpace(t.FromUserID) == "" {
		missing = append(missing, "fromUserId")
	}
	if strings.TrimSpace(t.ToUserID) == "" {
		missing = append(missing, "toUserId")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidTransfer, strings.Join(missing, ", "))
	}
	if _, ok := t.CreatedAt(); !ok {
		return fmt.Errorf("%w: timestamp %q is not RFC 3339", ErrInvalidTransfer, t.Timestamp)
	}
	return nil
}

func validateUnique(items []Transfer) error {
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, dup := seen[item.ID]; dup {
			return fmt.Errorf("save queue: %w: %s", ErrDuplicateID, item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	return nil
}

// IsClientError reports whether err stems from caller input rather than storage.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicateID) ||
		errors.Is(err, ErrInvalidTransfer) || errors.Is(err, ErrInvalidStatus)
}
