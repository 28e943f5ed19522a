package schema

import (
	"context"
	"sync"
)

// Store is a second-level descriptor cache shared beyond one registry,
// for example across processes. Failures are logged and the registry
// falls back to the catalog.
type Store interface {
	// Load returns the stored descriptor; ok is false on a miss.
	Load(ctx context.Context, key Key) (d *Descriptor, ok bool, err error)
	Save(ctx context.Context, key Key, d *Descriptor) error
}

// MemoryStore keeps descriptors in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[Key]*Descriptor
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[Key]*Descriptor)}
}

func (s *MemoryStore) Load(_ context.Context, key Key) (*Descriptor, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.items[key]
	return d, ok, nil
}

func (s *MemoryStore) Save(_ context.Context, key Key, d *Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = d
	return nil
}

// Len reports the number of stored descriptors.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
