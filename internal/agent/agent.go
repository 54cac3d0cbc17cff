package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"handreceipt/internal/api"
	"handreceipt/internal/config"
	"handreceipt/internal/connectivity"
	"handreceipt/internal/logging"
	"handreceipt/internal/metrics"
	"handreceipt/internal/notifications"
	"handreceipt/internal/queue"
	"handreceipt/internal/queue/storage"
	"handreceipt/internal/syncer"
)

// ErrAlreadyRunning is returned by Start when the agent is active.
var ErrAlreadyRunning = errors.New("agent already running")

// Components bundles the collaborators an Agent coordinates. Monitor and
// Netlink are optional; without a Monitor connectivity comes from the
// engine's observer alone.
type Components struct {
	Backend  storage.Backend
	Queue    *queue.Queue
	Engine   *syncer.Engine
	Monitor  *connectivity.Monitor
	Netlink  *connectivity.NetlinkWatcher
	Metrics  *metrics.Metrics
	Notifier notifications.Service
}

// Agent owns the transfer queue for one device and enforces single-instance
// execution.
type Agent struct {
	cfg     *config.Config
	logger  *slog.Logger
	backend storage.Backend
	queue   *queue.Queue
	engine  *syncer.Engine
	monitor *connectivity.Monitor
	netlink *connectivity.NetlinkWatcher
	metrics *metrics.Metrics
	notify  notifications.Service
	logPath string

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc

	startedAt atomic.Int64
}

// Status represents agent runtime information.
type Status struct {
	Running       bool
	PID           int
	StartedAt     time.Time
	Online        bool
	LastOnline    time.Time
	Syncing       bool
	NetlinkActive bool
	RemoteURL     string
	LockFilePath  string
	Storage       storage.Health
	Counts        queue.Counts
	LastSync      *syncer.Summary
}

// New constructs an agent with initialized dependencies.
func New(cfg *config.Config, parts Components, logger *slog.Logger) (*Agent, error) {
	if cfg == nil || parts.Backend == nil || parts.Queue == nil || parts.Engine == nil {
		return nil, errors.New("agent requires config, storage backend, queue, and sync engine")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := parts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	lockPath := cfg.LockPath()
	a := &Agent{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "agent"),
		backend:  parts.Backend,
		queue:    parts.Queue,
		engine:   parts.Engine,
		monitor:  parts.Monitor,
		netlink:  parts.Netlink,
		metrics:  parts.Metrics,
		notify:   notifier,
		logPath:  filepath.Join(cfg.Paths.LogDir, logging.LogFileName),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	server, err := newAPIServer(cfg, a, logger)
	if err != nil {
		return nil, err
	}
	a.api = server
	return a, nil
}

// Start acquires the single-instance lock, restores the persisted queue, and
// launches connectivity monitoring and the sync engine.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running.Load() {
		return ErrAlreadyRunning
	}

	ok, err := a.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another handreceipt agent instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	loaded := a.queue.Load(runCtx)
	recovered, err := a.queue.RecoverInterrupted(runCtx)
	if err != nil {
		logging.WarnWithContext(a.logger, "recover interrupted transfers failed", "queue_recover_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "transfers left SYNCING are skipped until the next start"),
		)
	}

	if err := a.api.start(runCtx); err != nil {
		cancel()
		_ = a.lock.Unlock()
		return fmt.Errorf("start api server: %w", err)
	}

	a.engine.Start(runCtx)
	if a.monitor != nil {
		a.monitor.Start(runCtx)
	}
	if err := a.netlink.Start(runCtx); err != nil {
		a.logger.Debug("netlink watcher not started", logging.Error(err))
	}

	a.cancel = cancel
	a.startedAt.Store(time.Now().UnixNano())
	a.running.Store(true)
	a.logger.Info("handreceipt agent started",
		logging.String("lock", a.lockPath),
		logging.String("storage", a.backend.Path()),
		logging.Int("queued", len(loaded)),
		logging.Int("recovered", recovered),
		logging.String(logging.FieldEventType, "agent_started"),
	)
	return nil
}

// Stop halts background work and releases the agent lock. A pass in flight
// is cancelled; its transfer is recovered on the next start.
func (a *Agent) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running.Load() {
		return
	}

	a.netlink.Stop()
	if a.monitor != nil {
		a.monitor.Stop()
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.engine.Stop()
	a.api.stop()
	if err := a.lock.Unlock(); err != nil {
		a.logger.Warn("failed to release agent lock", logging.Error(err))
	}
	a.running.Store(false)
	a.logger.Info("handreceipt agent stopped", logging.String(logging.FieldEventType, "agent_stopped"))
}

// Close releases resources held by the agent.
func (a *Agent) Close() error {
	a.Stop()
	if a.backend != nil {
		return a.backend.Close()
	}
	return nil
}

// Running reports whether Start has succeeded and Stop has not been called.
func (a *Agent) Running() bool {
	return a.running.Load()
}

// Status returns the current agent status.
func (a *Agent) Status(ctx context.Context) Status {
	status := Status{
		Running:       a.running.Load(),
		PID:           os.Getpid(),
		Online:        a.engine.Online(),
		Syncing:       a.engine.Syncing(),
		NetlinkActive: a.netlink.Running(),
		RemoteURL:     a.cfg.Remote.BaseURL,
		LockFilePath:  a.lockPath,
		Storage:       a.backend.Check(ctx),
		Counts:        a.queue.Counts(),
	}
	if started := a.startedAt.Load(); started > 0 && status.Running {
		status.StartedAt = time.Unix(0, started)
	}
	if a.monitor != nil {
		status.LastOnline = a.monitor.LastOnline()
	}
	if last := a.engine.LastSummary(); last.Ran {
		status.LastSync = &last
	}
	return status
}

// ListQueue returns queued transfers filtered by optional statuses.
func (a *Agent) ListQueue(statuses []queue.Status) []queue.Transfer {
	return api.FilterByStatus(a.queue.Snapshot(), statuses)
}

// GetTransfer returns a single queued transfer.
func (a *Agent) GetTransfer(id string) (queue.Transfer, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return queue.Transfer{}, fmt.Errorf("%w: id is required", queue.ErrInvalidTransfer)
	}
	item, ok := a.queue.Get(id)
	if !ok {
		return queue.Transfer{}, fmt.Errorf("transfer %s: %w", id, queue.ErrNotFound)
	}
	return item, nil
}

// Enqueue records a custody transfer and triggers a pass when online.
func (a *Agent) Enqueue(ctx context.Context, t queue.Transfer) (queue.Transfer, error) {
	return a.engine.Enqueue(ctx, t)
}

// RemoveTransfer deletes a queued transfer.
func (a *Agent) RemoveTransfer(ctx context.Context, id string) error {
	if a.engine.Syncing() {
		if item, ok := a.queue.Get(id); ok && item.Status == queue.StatusSyncing {
			return fmt.Errorf("transfer %s is being submitted", id)
		}
	}
	if err := a.queue.Remove(ctx, id); err != nil {
		return err
	}
	a.logger.Info("transfer removed",
		logging.String(logging.FieldTransferID, id),
		logging.String(logging.FieldEventType, "transfer_removed"),
	)
	return nil
}

// SyncNow runs a pass immediately.
func (a *Agent) SyncNow(ctx context.Context) syncer.Summary {
	return a.engine.SyncNow(ctx)
}

// RetryFailed resets FAILED transfers and syncs when online.
func (a *Agent) RetryFailed(ctx context.Context) (int, syncer.Summary, error) {
	return a.engine.RetryFailed(ctx)
}

// ClearFailed removes FAILED transfers.
func (a *Agent) ClearFailed(ctx context.Context) (int, error) {
	return a.engine.ClearFailed(ctx)
}

// Foreground signals that the operator is back and asks for a fresh
// connectivity probe before syncing.
func (a *Agent) Foreground() bool {
	if a.monitor != nil {
		a.monitor.Kick()
	}
	return a.engine.Foreground()
}

// TestNotification triggers a test notification using the current configuration.
func (a *Agent) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(a.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := a.notify.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Policy returns the retry policy in effect.
func (a *Agent) Policy() queue.RetryPolicy {
	return a.engine.Policy()
}

// LogPath returns the path to the agent log file.
func (a *Agent) LogPath() string {
	return a.logPath
}
