package storage

import (
	"context"
	"sync"
)

// Memory is an in-process Backend for tests and dry runs.
type Memory struct {
	mu     sync.Mutex
	values map[string][]byte
	getErr error
	setErr error
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	value, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = append([]byte(nil), value...)
	return nil
}

// Put seeds a raw value, bypassing injected errors.
func (m *Memory) Put(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
}

// FailGets makes subsequent Get calls return err; nil clears it.
func (m *Memory) FailGets(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErr = err
}

// FailSets makes subsequent Set calls return err; nil clears it.
func (m *Memory) FailSets(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setErr = err
}

func (m *Memory) Check(context.Context) Health {
	return Health{Backend: "memory", Exists: true, Readable: true}
}

func (m *Memory) Path() string { return ":memory:" }

func (m *Memory) Close() error { return nil }
