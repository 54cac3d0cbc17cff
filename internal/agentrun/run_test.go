package agentrun

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"handreceipt/internal/logging"
	"handreceipt/internal/queue/storage"
	"handreceipt/internal/testsupport"
)

func TestAssembleAppliesSyncSettings(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Sync.MaxRetries = 5
	cfg.Sync.RetryCooldownSeconds = 30

	parts, err := assemble(cfg, storage.NewMemory(), logging.NewNop(), false)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if parts.Queue == nil || parts.Engine == nil || parts.Monitor == nil || parts.Metrics == nil {
		t.Fatalf("expected core components, got %+v", parts)
	}
	if parts.Netlink != nil {
		t.Fatal("expected netlink watcher to be disabled by test config")
	}
	policy := parts.Engine.Policy()
	if policy.MaxRetries != 5 || policy.Cooldown != 30*time.Second {
		t.Fatalf("unexpected policy %+v", policy)
	}
	if parts.Queue.Policy() != policy {
		t.Fatalf("queue and engine policies diverge: %+v vs %+v", parts.Queue.Policy(), policy)
	}
}

func TestAssembleEnablesNetlink(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Sync.Netlink = true
	parts, err := assemble(cfg, storage.NewMemory(), logging.NewNop(), false)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if parts.Netlink == nil {
		t.Fatal("expected netlink watcher when enabled")
	}
}

func TestAssembleOfflinePinsConnectivity(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Sync.Netlink = true
	parts, err := assemble(cfg, storage.NewMemory(), logging.NewNop(), true)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if parts.Monitor != nil || parts.Netlink != nil {
		t.Fatalf("expected no monitor or watcher offline, got %+v", parts)
	}
	if parts.Engine.Online() {
		t.Fatal("expected engine to report offline")
	}
}

func TestAssembleRejectsBadRemote(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRemote("::not a url"))
	if _, err := assemble(cfg, storage.NewMemory(), logging.NewNop(), false); err == nil {
		t.Fatal("expected error for unparsable remote url")
	}
}

func TestWritePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "handreceipt.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pid: %v", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		t.Fatal("expected pid contents")
	}
	if err := writePIDFile(""); err != nil {
		t.Fatalf("empty path should be a no-op: %v", err)
	}
}
