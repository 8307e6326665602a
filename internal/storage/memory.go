package storage

import (
	"context"
	"sync"
)

// MemoryStore is a Store that does not survive the process. It is used by
// tests and by the "memory" backend.
type MemoryStore struct {
	mu    sync.Mutex
	snap  RecoverySnapshot
	ok    bool
	loads int
	saves int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

// Load implements Store.
func (s *MemoryStore) Load(context.Context) (RecoverySnapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	return s.snap, s.ok, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, snap RecoverySnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.snap = snap
	s.ok = true
	return nil
}

// Snapshot returns the stored value without counting a load.
func (s *MemoryStore) Snapshot() (RecoverySnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap, s.ok
}

// Loads returns how many times Load was called.
func (s *MemoryStore) Loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

// Saves returns how many times Save was called.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
