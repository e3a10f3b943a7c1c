package memory

import (
	"context"
	"sync"

	"github.com/stuvusIT/entman/internal/entman/store"
	"github.com/stuvusIT/entman/internal/entman/types"
)

// HistoryStore is an in-memory append-only log of access attempts.
// It is intended for use in tests and dev environments.
type HistoryStore struct {
	mu      sync.RWMutex
	entries []types.HistoryEntry
}

func NewHistoryStore() *HistoryStore {
	return &HistoryStore{}
}

func (s *HistoryStore) Insert(_ context.Context, e types.HistoryEntry) error {
	e.Response = e.Response.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *HistoryStore) Query(_ context.Context, q types.HistoryQuery) ([]types.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return store.Apply(q, s.entries), nil
}

func (s *HistoryStore) Ping(context.Context) error { return nil }

// Entries returns a copy of all recorded entries in insertion order.
func (s *HistoryStore) Entries() []types.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.HistoryEntry, len(s.entries))
	copy(out, s.entries)
	return out
}
