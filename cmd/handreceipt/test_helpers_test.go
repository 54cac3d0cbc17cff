package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"handreceipt/internal/agent"
	"handreceipt/internal/config"
	"handreceipt/internal/connectivity"
	"handreceipt/internal/ipc"
	"handreceipt/internal/logging"
	"handreceipt/internal/queue"
	"handreceipt/internal/remote"
	"handreceipt/internal/syncer"
	"handreceipt/internal/testsupport"
)

// scriptedSubmitter rejects submissions for properties listed in reject.
type scriptedSubmitter struct {
	mu     sync.Mutex
	reject map[string]string
	calls  int
}

func (s *scriptedSubmitter) Submit(_ context.Context, req remote.SubmitRequest) (remote.SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if msg, ok := s.reject[req.PropertyID]; ok {
		return remote.SubmitResult{Success: false, Error: msg}, nil
	}
	return remote.SubmitResult{Success: true}, nil
}

type cliTestEnv struct {
	cfg        *config.Config
	queue      *queue.Queue
	engine     *syncer.Engine
	network    *connectivity.Static
	submitter  *scriptedSubmitter
	configPath string
}

func writeTestConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	path := filepath.Join(testsupport.BaseDir(cfg), "handreceipt.toml")
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// setupOfflineEnv writes a config without starting an agent, so commands
// use their storage fallback.
func setupOfflineEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	cfg := testsupport.NewConfig(t, testsupport.WithoutAPI())
	return &cliTestEnv{cfg: cfg, configPath: writeTestConfig(t, cfg)}
}

// setupAgentEnv runs an in-process agent behind its IPC socket.
func setupAgentEnv(t *testing.T, online bool) *cliTestEnv {
	t.Helper()
	env := setupOfflineEnv(t)
	q, backend := testsupport.MustOpenQueue(t, env.cfg)
	env.queue = q
	env.network = connectivity.NewStatic(online)
	env.submitter = &scriptedSubmitter{reject: map[string]string{"P-BAD": "custody chain mismatch"}}
	env.engine = syncer.New(q, env.submitter, env.network)

	logger := logging.NewNop()
	a, err := agent.New(env.cfg, agent.Components{Backend: backend, Queue: q, Engine: env.engine}, logger)
	if err != nil {
		t.Fatalf("agent.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := a.Start(ctx); err != nil {
		cancel()
		t.Fatalf("agent.Start: %v", err)
	}
	srv, err := ipc.NewServer(ctx, env.cfg.SocketPath(), a, logger, nil)
	if err != nil {
		cancel()
		a.Stop()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI IPC test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		a.Stop()
	})
	return env
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
