package receiver

import (
	"context"
	"strings"
	"sync"
)

// Store persists accepted transfers and current holders.
//
// Record must apply the custody check and the write atomically. Rejected
// transfers are not stored so a later retry is evaluated again against the
// holder at that time.
type Store interface {
	Record(ctx context.Context, t Transfer) (Outcome, error)
	Property(ctx context.Context, id string) (Property, error)
	Ping(ctx context.Context) error
	Close()
}

// MemoryStore keeps custody records in process memory.
type MemoryStore struct {
	mu        sync.Mutex
	transfers map[string]Transfer
	holders   map[string]string
	history   map[string][]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transfers: make(map[string]Transfer),
		holders:   make(map[string]string),
		history:   make(map[string][]string),
	}
}

// Record applies t under the store lock.
func (s *MemoryStore) Record(_ context.Context, t Transfer) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.transfers[t.ID]; ok {
		if !existing.samePayload(t) {
			return Outcome{}, ErrIdempotencyMismatch
		}
		return Outcome{Accepted: true, Replayed: true}, nil
	}

	outcome, ok := checkCustody(s.holders[t.PropertyID], t)
	if !ok {
		return outcome, nil
	}
	s.transfers[t.ID] = t
	s.holders[t.PropertyID] = t.ToUserID
	s.history[t.PropertyID] = append(s.history[t.PropertyID], t.ID)
	return outcome, nil
}

// Property returns the holder and accepted transfers for id, oldest first.
func (s *MemoryStore) Property(_ context.Context, id string) (Property, error) {
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, ok := s.history[id]
	if !ok {
		return Property{}, ErrPropertyNotFound
	}
	prop := Property{ID: id, Holder: s.holders[id], History: make([]Transfer, 0, len(ids))}
	for _, transferID := range ids {
		prop.History = append(prop.History, s.transfers[transferID])
	}
	return prop, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() {}
