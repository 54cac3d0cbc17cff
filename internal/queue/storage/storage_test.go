package storage_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"handreceipt/internal/config"
	"handreceipt/internal/queue/storage"
)

func openBackends(t *testing.T) map[string]storage.Backend {
	t.Helper()
	dir := t.TempDir()

	sqlite, err := storage.OpenSQLite(filepath.Join(dir, "queue.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	file, err := storage.OpenFile(filepath.Join(dir, "queue"))
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlite.Close()
		_ = file.Close()
	})
	return map[string]storage.Backend{
		"sqlite": sqlite,
		"file":   file,
		"memory": storage.NewMemory(),
	}
}

func TestBackendsGetSet(t *testing.T) {
	ctx := context.Background()
	for name, backend := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := backend.Get(ctx, "@transfer_queue"); err != nil || ok {
				t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
			}
			if err := backend.Set(ctx, "@transfer_queue", []byte(`[1]`)); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := backend.Set(ctx, "@transfer_queue", []byte(`[1,2]`)); err != nil {
				t.Fatalf("Set overwrite: %v", err)
			}
			value, ok, err := backend.Get(ctx, "@transfer_queue")
			if err != nil || !ok {
				t.Fatalf("Get: ok=%v err=%v", ok, err)
			}
			if string(value) != `[1,2]` {
				t.Fatalf("unexpected value %q", value)
			}
			if health := backend.Check(ctx); !health.OK() {
				t.Fatalf("expected healthy backend, got %+v", health)
			}
		})
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queue.db")

	first, err := storage.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := first.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := storage.OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	value, ok, err := second.Get(ctx, "k")
	if err != nil || !ok || string(value) != "v" {
		t.Fatalf("expected persisted value, got %q ok=%v err=%v", value, ok, err)
	}
}

func TestSQLiteClosedReturnsErrClosed(t *testing.T) {
	backend, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	_ = backend.Close()
	if err := backend.Set(context.Background(), "k", nil); !errors.Is(err, storage.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestFileConcurrentWritersNeverTear(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "queue")
	backend, err := storage.OpenFile(dir)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer backend.Close()

	payloads := [][]byte{[]byte(`["a","a","a"]`), []byte(`["b"]`)}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := backend.Set(ctx, "k", payloads[i%2]); err != nil {
				t.Errorf("Set: %v", err)
			}
		}(i)
	}
	wg.Wait()

	value, _, err := backend.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(value) != string(payloads[0]) && string(value) != string(payloads[1]) {
		t.Fatalf("torn write: %q", value)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, entry := range entries {
		if entry.Name() != "k.json" && entry.Name() != ".lock" {
			t.Fatalf("leftover temp file %q", entry.Name())
		}
	}
}

func TestOpenSelectsBackendFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Paths.LogDir = filepath.Join(cfg.Paths.StateDir, "logs")
	cfg.Storage.Backend = config.StorageFile

	backend, err := storage.Open(&cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer backend.Close()
	if _, ok := backend.(*storage.File); !ok {
		t.Fatalf("expected file backend, got %T", backend)
	}

	cfg.Storage.Backend = "etcd"
	if _, err := storage.Open(&cfg); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
