package storage

import (
	"context"
	"errors"
	"fmt"

	"handreceipt/internal/config"
)

// ErrClosed is returned by operations on a backend after Close.
var ErrClosed = errors.New("storage closed")

// Backend is a durable key/value store. Set must be atomic from a reader's
// perspective: a concurrent Get observes either the old or the new value.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Check(ctx context.Context) Health
	Path() string
	Close() error
}

// Health summarizes the state of a backend for status and preflight output.
type Health struct {
	Backend   string `json:"backend"`
	Path      string `json:"path"`
	Exists    bool   `json:"exists"`
	Readable  bool   `json:"readable"`
	Integrity string `json:"integrity,omitempty"`
	Error     string `json:"error,omitempty"`
}

// OK reports whether the backend is usable.
func (h Health) OK() bool {
	return h.Readable && h.Error == "" && (h.Integrity == "" || h.Integrity == "ok")
}

// Open returns the backend selected by cfg.Storage.Backend rooted at cfg.QueuePath().
func Open(cfg *config.Config) (Backend, error) {
	if cfg == nil {
		return nil, errors.New("open storage: config is nil")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	switch cfg.Storage.Backend {
	case config.StorageFile:
		return OpenFile(cfg.QueuePath())
	case config.StorageSQLite, "":
		return OpenSQLite(cfg.QueuePath())
	default:
		return nil, fmt.Errorf("open storage: unsupported backend %q", cfg.Storage.Backend)
	}
}
