package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const fileLockRetry = 25 * time.Millisecond

// File stores each key as a JSON document inside a directory. Writes go to a
// temp file that is fsynced and renamed over the target, all under an
// exclusive flock so separate processes never interleave. The flock handle is
// shared, so goroutines in this process also serialize on mu.
type File struct {
	mu   sync.RWMutex
	dir  string
	lock *flock.Flock
}

// OpenFile prepares dir for key storage.
func OpenFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &File{dir: dir, lock: flock.New(filepath.Join(dir, ".lock"))}, nil
}

// Get reads the stored value for key under a shared lock.
func (f *File) Get(ctx context.Context, key string) ([]byte, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.lock == nil {
		return nil, false, ErrClosed
	}
	locked, err := f.lock.TryRLockContext(ensureContext(ctx), fileLockRetry)
	if err != nil || !locked {
		return nil, false, fmt.Errorf("lock %s: %w", f.dir, lockErr(err))
	}
	defer func() { _ = f.lock.Unlock() }()

	data, err := os.ReadFile(f.keyPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	return data, true, nil
}

// Set atomically replaces the stored value for key.
func (f *File) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lock == nil {
		return ErrClosed
	}
	locked, err := f.lock.TryLockContext(ensureContext(ctx), fileLockRetry)
	if err != nil || !locked {
		return fmt.Errorf("lock %s: %w", f.dir, lockErr(err))
	}
	defer func() { _ = f.lock.Unlock() }()

	target := f.keyPath(key)
	tmp, err := os.CreateTemp(f.dir, "."+filepath.Base(target)+"-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		cleanup()
		return fmt.Errorf("replace %s: %w", key, err)
	}
	return nil
}

// Check verifies the directory is present and readable.
func (f *File) Check(context.Context) Health {
	health := Health{Backend: "file", Path: f.dir}
	info, err := os.Stat(f.dir)
	if err != nil {
		health.Error = err.Error()
		return health
	}
	health.Exists = info.IsDir()
	if _, err := os.ReadDir(f.dir); err != nil {
		health.Error = err.Error()
		return health
	}
	health.Readable = true
	return health
}

// Path returns the storage directory.
func (f *File) Path() string {
	return f.dir
}

// Close releases the lock handle.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lock == nil {
		return nil
	}
	err := f.lock.Close()
	f.lock = nil
	return err
}

func (f *File) keyPath(key string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(strings.TrimSpace(key))
	if name == "" {
		name = "_"
	}
	return filepath.Join(f.dir, name+".json")
}

func lockErr(err error) error {
	if err != nil {
		return err
	}
	return errors.New("lock not acquired")
}
