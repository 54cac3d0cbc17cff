package agentctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"handreceipt/internal/api"
	"handreceipt/internal/config"
	"handreceipt/internal/ipc"
	"handreceipt/internal/preflight"
	"handreceipt/internal/queue"
	"handreceipt/internal/queue/storage"
)

// LaunchOptions controls agent process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
	Offline    bool
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures agent start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
	PID      int
}

// ErrAgentNotRunning indicates agent IPC is unavailable.
var ErrAgentNotRunning = errors.New("agent not running")

// Launch starts a detached handreceipt agent process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"daemon"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}
	if opts.Offline {
		args = append(args, "--offline")
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch agent: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient waits for IPC socket availability and returns a connected client.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for agent")
	}
	return nil, fmt.Errorf("agent failed to start: %w", lastErr)
}

// EnsureStarted launches the agent unless it already answers on socketPath.
// The agent starts itself, so a reachable socket means it is up.
func EnsureStarted(socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	launched := false
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if launchErr := Launch(executablePath, opts); launchErr != nil {
			return StartResult{}, launchErr
		}
		client, err = WaitForClient(socketPath, waitTimeout)
		if err != nil {
			return StartResult{}, err
		}
		launched = true
	}
	defer client.Close()

	// The socket can come up a moment before Start finishes.
	deadline := time.Now().Add(waitTimeout)
	for {
		resp, statusErr := client.Status()
		if statusErr != nil {
			return StartResult{}, statusErr
		}
		if resp.Status.Running {
			state := StartStateAlreadyRunning
			if launched {
				state = StartStateStarted
			}
			return StartResult{State: state, Launched: launched, PID: resp.Status.PID}, nil
		}
		if time.Now().After(deadline) {
			return StartResult{}, errors.New("agent answered but did not report running; check the agent log")
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// WaitForShutdown waits for agent IPC to disappear or report not-running.
func WaitForShutdown(socketPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err != nil {
			if isAgentUnavailable(err) {
				return nil
			}
			lastErr = err
			time.Sleep(200 * time.Millisecond)
			continue
		}
		resp, statusErr := client.Status()
		_ = client.Close()
		if statusErr == nil && !resp.Status.Running {
			return nil
		}
		if statusErr != nil {
			lastErr = statusErr
		} else {
			lastErr = fmt.Errorf("agent still running")
		}
		time.Sleep(200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for shutdown")
	}
	return fmt.Errorf("agent did not stop: %w", lastErr)
}

// ProcessInfo returns whether agent IPC is reachable and the agent PID when available.
func ProcessInfo(socketPath string) (bool, int, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isAgentUnavailable(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	defer client.Close()
	resp, statusErr := client.Status()
	if statusErr != nil {
		return true, 0, statusErr
	}
	return true, resp.Status.PID, nil
}

// ForceKillProcess sends SIGKILL to the agent process and cleans pid/lock files.
func ForceKillProcess(pidPath, lockPath string, fallbackPID int) (int, error) {
	pid := fallbackPID
	data, err := os.ReadFile(pidPath)
	if err == nil {
		if parsed, parseErr := strconv.Atoi(strings.TrimSpace(string(data))); parseErr == nil && parsed > 0 {
			pid = parsed
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("read agent pid file %q: %w", pidPath, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine agent pid (pid file: %s)", pidPath)
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("locate agent process %d: %w", pid, err)
	}
	if err := proc.Kill(); err != nil {
		return 0, fmt.Errorf("kill agent process %d: %w", pid, err)
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	if lockPath != "" {
		_ = os.Remove(lockPath)
	}
	return pid, nil
}

// StopResult captures agent stop/termination outcome.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// StopAndTerminate requests agent stop and force-kills the process if still
// alive after gracePeriod.
func StopAndTerminate(cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	socketPath := cfg.SocketPath()
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isAgentUnavailable(err) {
			return StopResult{}, ErrAgentNotRunning
		}
		return StopResult{}, err
	}
	pid := 0
	if statusResp, statusErr := client.Status(); statusErr == nil {
		pid = statusResp.Status.PID
	}
	resp, err := client.Stop()
	_ = client.Close()
	if err != nil {
		return StopResult{}, err
	}
	result := StopResult{PID: pid, StopAcknowledged: resp.Stopped}

	_ = WaitForShutdown(socketPath, gracePeriod)
	alive, livePID, aliveErr := ProcessInfo(socketPath)
	if aliveErr != nil || !alive {
		return result, nil
	}

	if livePID == 0 {
		livePID = pid
	}
	killedPID, killErr := ForceKillProcess(cfg.PIDPath(), cfg.LockPath(), livePID)
	if killErr != nil {
		return result, fmt.Errorf("failed to stop agent process: %w", killErr)
	}
	_ = os.Remove(socketPath)
	result.ForcedKill = true
	result.PID = killedPID
	return result, nil
}

// Snapshot is the combined status view rendered by `handreceipt status`.
type Snapshot struct {
	Agent        api.AgentStatus  `json:"agent"`
	SystemChecks []api.StatusLine `json:"system_checks"`
	Paths        []api.StatusLine `json:"paths"`
}

// BuildStatusSnapshot collects agent status over IPC and falls back to
// reading queue storage directly when the agent is not running.
func BuildStatusSnapshot(ctx context.Context, cfg *config.Config) (*Snapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	snapshot := &Snapshot{}

	client, err := ipc.Dial(cfg.SocketPath())
	if err == nil {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil {
			snapshot.Agent = resp.Status
		}
	}

	if !snapshot.Agent.Running {
		snapshot.Agent.RemoteURL = cfg.Remote.BaseURL
		snapshot.Agent.LockFilePath = cfg.LockPath()
		if counts, health, readErr := readOffline(ctx, cfg); readErr == nil {
			snapshot.Agent.Counts = api.FromCounts(counts)
			snapshot.Agent.Storage = api.FromHealth(health)
		} else {
			snapshot.Agent.Storage = api.StorageStatus{Backend: cfg.Storage.Backend, Path: cfg.QueuePath(), Error: readErr.Error()}
		}
	}

	snapshot.SystemChecks = BuildSystemChecks(ctx, cfg, snapshot.Agent)
	snapshot.Paths = BuildPathChecks(cfg)
	return snapshot, nil
}

func readOffline(ctx context.Context, cfg *config.Config) (queue.Counts, storage.Health, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	backend, err := storage.Open(cfg)
	if err != nil {
		return queue.Counts{}, storage.Health{}, err
	}
	defer backend.Close()

	q := queue.New(backend,
		queue.WithKey(cfg.Storage.Key),
		queue.WithPolicy(queue.RetryPolicy{MaxRetries: cfg.Sync.MaxRetries, Cooldown: cfg.RetryCooldown()}),
	)
	q.Load(queryCtx)
	return q.Counts(), backend.Check(queryCtx), nil
}

func isAgentUnavailable(err error) bool {
	return os.IsNotExist(err) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}

// BuildSystemChecks resolves status lines that combine runtime state and config checks.
func BuildSystemChecks(ctx context.Context, cfg *config.Config, status api.AgentStatus) []api.StatusLine {
	lines := make([]api.StatusLine, 0, 6)
	if status.Running {
		lines = append(lines, api.StatusLine{Label: "HandReceipt", Severity: "ok", Detail: "Running"})
		if status.Online {
			lines = append(lines, api.StatusLine{Label: "Connectivity", Severity: "ok", Detail: "Online"})
		} else {
			lines = append(lines, api.StatusLine{Label: "Connectivity", Severity: "warn", Detail: "Offline (transfers queue locally)"})
		}
	} else {
		lines = append(lines, api.StatusLine{Label: "HandReceipt", Severity: "warn", Detail: "Not running (run `handreceipt start`)"})
	}

	remote := preflight.CheckRemoteFromConfig(ctx, cfg)
	switch {
	case remote.Passed:
		lines = append(lines, api.StatusLine{Label: remote.Name, Severity: "ok", Detail: remote.Detail})
	case strings.EqualFold(strings.TrimSpace(remote.Detail), "Unknown"):
		lines = append(lines, api.StatusLine{Label: remote.Name, Severity: "info", Detail: remote.Detail})
	default:
		lines = append(lines, api.StatusLine{Label: remote.Name, Severity: "warn", Detail: remote.Detail})
	}

	store := preflight.CheckStorage(storage.Health{
		Backend:   status.Storage.Backend,
		Path:      status.Storage.Path,
		Exists:    status.Storage.Exists,
		Readable:  status.Storage.Readable,
		Integrity: status.Storage.Integrity,
		Error:     status.Storage.Error,
	})
	severity := "error"
	if store.Passed {
		severity = "ok"
	}
	lines = append(lines, api.StatusLine{Label: "Queue Storage", Severity: severity, Detail: store.Detail})

	notify := preflight.CheckNotificationsFromConfig(cfg)
	if notify.Passed {
		lines = append(lines, api.StatusLine{Label: notify.Name, Severity: "ok", Detail: notify.Detail})
	} else {
		lines = append(lines, api.StatusLine{Label: notify.Name, Severity: "warn", Detail: notify.Detail})
	}

	switch {
	case status.NetlinkActive:
		lines = append(lines, api.StatusLine{Label: "Link Events", Severity: "ok", Detail: "Netlink monitoring active"})
	case !status.Running:
		lines = append(lines, api.StatusLine{Label: "Link Events", Severity: "info", Detail: "Inactive (agent not running)"})
	case !cfg.Sync.Netlink:
		lines = append(lines, api.StatusLine{Label: "Link Events", Severity: "info", Detail: "Disabled (periodic probes only)"})
	default:
		lines = append(lines, api.StatusLine{Label: "Link Events", Severity: "warn", Detail: "Netlink unavailable (periodic probes only)"})
	}

	return lines
}

// BuildPathChecks resolves configured directory readiness.
func BuildPathChecks(cfg *config.Config) []api.StatusLine {
	lines := make([]api.StatusLine, 0, 2)
	for _, dir := range []struct {
		label string
		path  string
	}{
		{label: "State", path: cfg.Paths.StateDir},
		{label: "Logs", path: cfg.Paths.LogDir},
	} {
		result := preflight.CheckDirectoryAccess(dir.label, dir.path)
		severity := "error"
		if result.Passed {
			severity = "ok"
		}
		lines = append(lines, api.StatusLine{Label: dir.label, Severity: severity, Detail: result.Detail})
	}
	return lines
}
