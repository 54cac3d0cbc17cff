package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"handreceipt/internal/config"
)

func TestLoadDefaultConfigUsesEnvRemoteAndExpandsPaths(t *testing.T) {
	t.Setenv("HANDRECEIPT_REMOTE_URL", "https://custody.example.com/")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "handreceipt")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Remote.BaseURL != "https://custody.example.com" {
		t.Fatalf("expected trimmed remote url from env, got %q", cfg.Remote.BaseURL)
	}
	if cfg.Storage.Backend != config.StorageSQLite {
		t.Fatalf("expected sqlite backend by default, got %q", cfg.Storage.Backend)
	}
	if cfg.Storage.Key != "@transfer_queue" {
		t.Fatalf("unexpected storage key: %q", cfg.Storage.Key)
	}
	if cfg.Sync.MaxRetries != 3 {
		t.Fatalf("expected 3 retries by default, got %d", cfg.Sync.MaxRetries)
	}
	if cfg.RetryCooldown() != 5*time.Minute {
		t.Fatalf("expected 5m cooldown by default, got %s", cfg.RetryCooldown())
	}
	if cfg.QueuePath() != filepath.Join(wantState, "queue.db") {
		t.Fatalf("unexpected queue path: %q", cfg.QueuePath())
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "handreceipt.toml")

	type payload struct {
		Storage struct {
			Backend string `toml:"backend"`
		} `toml:"storage"`
		Remote struct {
			BaseURL  string `toml:"base_url"`
			APIToken string `toml:"api_token"`
		} `toml:"remote"`
		Sync struct {
			MaxRetries           int `toml:"max_retries"`
			RetryCooldownSeconds int `toml:"retry_cooldown_seconds"`
		} `toml:"sync"`
	}
	custom := payload{}
	custom.Storage.Backend = "FILE"
	custom.Remote.BaseURL = "http://localhost:8085"
	custom.Remote.APIToken = " secret "
	custom.Sync.MaxRetries = 5
	custom.Sync.RetryCooldownSeconds = 60
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Storage.Backend != config.StorageFile {
		t.Fatalf("expected file backend, got %q", cfg.Storage.Backend)
	}
	if cfg.Remote.APIToken != "secret" {
		t.Fatalf("expected trimmed token, got %q", cfg.Remote.APIToken)
	}
	if cfg.Sync.MaxRetries != 5 {
		t.Fatalf("expected max retries 5, got %d", cfg.Sync.MaxRetries)
	}
	if cfg.RetryCooldown() != time.Minute {
		t.Fatalf("expected 1m cooldown, got %s", cfg.RetryCooldown())
	}
	if !strings.HasSuffix(cfg.QueuePath(), "queue") {
		t.Fatalf("expected file backend queue dir, got %q", cfg.QueuePath())
	}
}

func TestLoadRequiresRemoteURL(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("HANDRECEIPT_REMOTE_URL", "")

	_, _, _, err := config.Load("")
	if err == nil {
		t.Fatal("expected error when remote.base_url is missing")
	}
	if !strings.Contains(err.Error(), "remote.base_url") {
		t.Fatalf("expected remote.base_url hint, got %v", err)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if cfg.Sync.MaxRetries != 3 || cfg.Sync.RetryCooldownSeconds != 300 {
		t.Fatalf("sample retry policy drifted from defaults: %+v", cfg.Sync)
	}
	if !strings.Contains(cfg.Paths.StateDir, "handreceipt") {
		t.Fatalf("expected state dir to contain handreceipt, got %q", cfg.Paths.StateDir)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	valid := func() config.Config {
		cfg := config.Default()
		cfg.Remote.BaseURL = "https://custody.example.com"
		return cfg
	}

	cfg := valid()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config with remote url to validate: %v", err)
	}

	cfg = valid()
	cfg.Storage.Backend = "redis"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unsupported backend")
	}

	cfg = valid()
	cfg.Remote.BaseURL = "ftp://custody.example.com"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-http remote")
	}

	cfg = valid()
	cfg.Sync.MaxRetries = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero max retries")
	}

	cfg = valid()
	cfg.Sync.ProbeIntervalSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive probe interval")
	}

	cfg = valid()
	cfg.Notifications.RequestTimeout = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive notification timeout")
	}
}
