package agentrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"handreceipt/internal/agent"
	"handreceipt/internal/config"
	"handreceipt/internal/connectivity"
	"handreceipt/internal/ipc"
	"handreceipt/internal/logging"
	"handreceipt/internal/metrics"
	"handreceipt/internal/notifications"
	"handreceipt/internal/preflight"
	"handreceipt/internal/queue"
	"handreceipt/internal/queue/storage"
	"handreceipt/internal/remote"
	"handreceipt/internal/syncer"
)

// Options configures agent process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool

	// Offline pins connectivity to offline: transfers queue but never sync.
	Offline bool
}

// Run starts the handreceipt agent and blocks until it is signalled or
// stopped over IPC.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logPath := filepath.Join(cfg.Paths.LogDir, logging.LogFileName)
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logging.PruneLogs(logger, cfg.Paths.LogDir, cfg.Logging.RetentionDays)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	backend, err := storage.Open(cfg)
	if err != nil {
		logger.Error("open queue storage", logging.Error(err))
		return err
	}

	parts, err := assemble(cfg, backend, logger, opts.Offline)
	if err != nil {
		_ = backend.Close()
		return err
	}

	a, err := agent.New(cfg, parts, logger)
	if err != nil {
		_ = backend.Close()
		return fmt.Errorf("create agent: %w", err)
	}
	defer a.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), a, logger, cancel)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()

	logPreflight(signalCtx, logger, cfg)

	if err := a.Start(signalCtx); err != nil {
		logging.WarnWithContext(logger, "agent start failed", "agent_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration and queue storage access"),
			logging.String(logging.FieldImpact, "transfers will not sync until the agent is restarted"),
		)
		return err
	}
	// Queue calls are only served once the queue has been loaded.
	ipcServer.Serve()

	<-signalCtx.Done()
	logger.Info("handreceipt agent shutting down")
	return nil
}

// assemble wires the queue, remote client, connectivity sources and sync
// engine over backend. When offline is set no probing or netlink watching is
// started and the engine sees a fixed offline observer.
func assemble(cfg *config.Config, backend storage.Backend, logger *slog.Logger, offline bool) (agent.Components, error) {
	policy := queue.RetryPolicy{MaxRetries: cfg.Sync.MaxRetries, Cooldown: cfg.RetryCooldown()}
	q := queue.New(backend,
		queue.WithKey(cfg.Storage.Key),
		queue.WithLogger(logger),
		queue.WithPolicy(policy),
	)

	client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.APIToken, cfg.RemoteTimeout())

	var (
		observer connectivity.Observer
		monitor  *connectivity.Monitor
		watcher  *connectivity.NetlinkWatcher
	)
	if offline {
		logger.Info("connectivity pinned offline; transfers will queue without syncing")
		observer = connectivity.NewStatic(false)
	} else {
		probe, err := connectivity.DialProber(cfg.Remote.BaseURL, cfg.ProbeTimeout())
		if err != nil {
			return agent.Components{}, fmt.Errorf("configure connectivity probe: %w", err)
		}
		monitor = connectivity.NewMonitor(probe, cfg.ProbeInterval(), logger)
		observer = monitor
		if cfg.Sync.Netlink {
			watcher = connectivity.NewNetlinkWatcher(logger, monitor.Kick)
		}
	}

	m := metrics.New()
	notifier := notifications.NewService(cfg)
	engine := syncer.New(q, client, observer,
		syncer.WithLogger(logger),
		syncer.WithMetrics(m),
		syncer.WithNotifier(notifier),
		syncer.WithPolicy(policy),
	)

	return agent.Components{
		Backend:  backend,
		Queue:    q,
		Engine:   engine,
		Monitor:  monitor,
		Netlink:  watcher,
		Metrics:  m,
		Notifier: notifier,
	}, nil
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, result := range preflight.RunAll(ctx, cfg) {
		if result.Passed {
			logger.Info("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
				logging.String(logging.FieldEventType, "preflight_passed"),
			)
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "transfers keep queueing locally; run handreceipt status for details"),
			logging.String(logging.FieldImpact, "sync may not succeed until resolved"),
		)
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
