package syncer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"handreceipt/internal/connectivity"
	"handreceipt/internal/logging"
	"handreceipt/internal/metrics"
	"handreceipt/internal/notifications"
	"handreceipt/internal/queue"
	"handreceipt/internal/remote"
)

// Triggers that start a sync pass.
const (
	TriggerConnectivity = "connectivity"
	TriggerEnqueue      = "enqueue"
	TriggerForeground   = "foreground"
	TriggerManual       = "manual"
	TriggerRetry        = "retry"
)

// Engine drains the transfer queue to the remote endpoint. At most one pass
// runs at a time; a trigger that arrives during a pass is dropped.
type Engine struct {
	queue     *queue.Queue
	submitter remote.Submitter
	observer  connectivity.Observer
	policy    queue.RetryPolicy
	notifier  notifications.Service
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time

	running atomic.Bool
	wg      sync.WaitGroup

	mu      sync.Mutex
	baseCtx context.Context
	cancel  context.CancelFunc
	unsubs  []func()
	last    Summary
	subs    map[int]func(Summary)
	nextSub int
}

// Option customizes an Engine.
type Option func(*Engine)

// WithNotifier sets the notification service used after passes.
func WithNotifier(n notifications.Service) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logging.NewComponentLogger(logger, "syncer") }
}

// WithClock replaces time.Now for retry eligibility.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithPolicy overrides the retry policy taken from the queue.
func WithPolicy(policy queue.RetryPolicy) Option {
	return func(e *Engine) { e.policy = policy }
}

// New constructs an Engine. The retry policy defaults to the queue's.
func New(q *queue.Queue, submitter remote.Submitter, observer connectivity.Observer, opts ...Option) *Engine {
	e := &Engine{
		queue:     q,
		submitter: submitter,
		observer:  observer,
		policy:    q.Policy(),
		notifier:  notifications.NewService(nil),
		logger:    logging.NewComponentLogger(nil, "syncer"),
		now:       time.Now,
		baseCtx:   context.Background(),
		subs:      make(map[int]func(Summary)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start binds the engine to the connectivity observer and the queue. Passes
// started by triggers run under ctx until Stop.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}
	e.baseCtx, e.cancel = context.WithCancel(ctx)
	e.unsubs = append(e.unsubs,
		e.observer.Subscribe(e.HandleConnectivity),
		e.queue.Subscribe(func(ev queue.Event) {
			e.metrics.ObserveQueue(queue.Tally(ev.Snapshot, e.policy))
		}),
	)
	e.metrics.ObserveOnline(e.observer.Online())
	e.metrics.ObserveQueue(e.queue.Counts())
}

// Stop detaches from the observer, cancels any running pass, and waits for
// triggered passes to return.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	unsubs := e.unsubs
	e.cancel = nil
	e.unsubs = nil
	e.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
}

// Wait blocks until every triggered pass has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Syncing reports whether a pass is in progress.
func (e *Engine) Syncing() bool {
	return e.running.Load()
}

// Online reports the observer's current state.
func (e *Engine) Online() bool {
	return e.observer.Online()
}

// Policy returns the retry policy applied to FAILED transfers.
func (e *Engine) Policy() queue.RetryPolicy {
	return e.policy
}

// LastSummary returns the most recent pass that ran.
func (e *Engine) LastSummary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Subscribe registers fn for the summary of every pass that ran.
func (e *Engine) Subscribe(fn func(Summary)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// HandleConnectivity reacts to observer transitions. Coming online with work
// queued starts a pass.
func (e *Engine) HandleConnectivity(online bool) {
	e.metrics.ObserveOnline(online)
	if !online {
		e.logger.Info("offline; transfers will queue locally",
			logging.String(logging.FieldEventType, "sync_offline"),
		)
		return
	}
	if e.queue.Len() == 0 {
		return
	}
	e.kick(TriggerConnectivity)
}

// Enqueue adds t to the queue and, when online, starts a pass.
func (e *Engine) Enqueue(ctx context.Context, t queue.Transfer) (queue.Transfer, error) {
	added, err := e.queue.Enqueue(ctx, t)
	if err != nil {
		return queue.Transfer{}, err
	}
	e.logger.Info("transfer queued",
		logging.String(logging.FieldTransferID, added.ID),
		logging.String(logging.FieldPropertyID, added.PropertyID),
		logging.Bool("online", e.observer.Online()),
		logging.String(logging.FieldEventType, "transfer_queued"),
	)
	if e.observer.Online() {
		e.kick(TriggerEnqueue)
	}
	return added, nil
}

// Foreground is called when the operator returns to the application. It
// reports whether a pass was started.
func (e *Engine) Foreground() bool {
	if !e.observer.Online() {
		return false
	}
	return e.kick(TriggerForeground)
}

// SyncNow runs a pass on the caller's goroutine.
func (e *Engine) SyncNow(ctx context.Context) Summary {
	return e.AttemptPass(ctx, TriggerManual)
}

// RetryFailed gives every FAILED transfer a fresh retry budget and, when
// online, runs a pass on the caller's goroutine.
func (e *Engine) RetryFailed(ctx context.Context) (int, Summary, error) {
	reset, err := e.queue.RetryFailed(ctx)
	if err != nil {
		return 0, Summary{}, err
	}
	e.logger.Info("failed transfers reset",
		logging.Int("count", reset),
		logging.String(logging.FieldEventType, "retry_failed"),
	)
	if !e.observer.Online() {
		return reset, Summary{Trigger: TriggerRetry, Reason: ReasonOffline}, nil
	}
	return reset, e.AttemptPass(ctx, TriggerRetry), nil
}

// ClearFailed drops every FAILED transfer.
func (e *Engine) ClearFailed(ctx context.Context) (int, error) {
	removed, err := e.queue.ClearFailed(ctx)
	if err != nil {
		return 0, err
	}
	e.logger.Info("failed transfers cleared",
		logging.Int("count", removed),
		logging.String(logging.FieldEventType, "clear_failed"),
	)
	return removed, nil
}

// kick starts a pass in the background unless one is already running.
func (e *Engine) kick(trigger string) bool {
	if e.running.Load() {
		e.logger.Debug("sync already running; trigger ignored", logging.String(logging.FieldTrigger, trigger))
		return false
	}
	e.mu.Lock()
	ctx := e.baseCtx
	e.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.AttemptPass(ctx, trigger)
	}()
	return true
}

func (e *Engine) record(summary Summary) {
	e.mu.Lock()
	e.last = summary
	handlers := make([]func(Summary), 0, len(e.subs))
	for _, fn := range e.subs {
		handlers = append(handlers, fn)
	}
	e.mu.Unlock()

	for _, fn := range handlers {
		fn(summary)
	}
}
