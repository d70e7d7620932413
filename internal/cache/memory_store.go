package cache

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/noah-isme/toko-cart/internal/cart"
)

// MemoryStore keeps cart snapshots in process memory. Snapshots are stored encoded so that
// callers never share state with the store.
type MemoryStore struct {
	mu    sync.RWMutex
	carts map[string][]byte
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: make(map[string][]byte)}
}

// Load implements cart.Store.
func (s *MemoryStore) Load(_ context.Context, instance string) (cart.Snapshot, bool, error) {
	s.mu.RLock()
	data, ok := s.carts[instance]
	s.mu.RUnlock()
	if !ok {
		return cart.Snapshot{}, false, nil
	}
	var snapshot cart.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return cart.Snapshot{}, false, err
	}
	return snapshot, true, nil
}

// Save implements cart.Store.
func (s *MemoryStore) Save(_ context.Context, snapshot cart.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.carts == nil {
		s.carts = make(map[string][]byte)
	}
	s.carts[snapshot.Instance] = data
	return nil
}

// Delete implements cart.Store.
func (s *MemoryStore) Delete(_ context.Context, instance string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, instance)
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Len returns the number of stored carts.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.carts)
}
