package ban

import (
	"context"
	"sort"
	"sync"

	"github.com/samber/lo"
)

// MemoryStore is a process-local ban table for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Lookup(_ context.Context, address string) (*Entry, error) {
	s.mu.RLock()
	e, ok := s.entries[address]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *MemoryStore) Upsert(_ context.Context, entry Entry) error {
	if entry.Address == "" {
		return ErrEmptyAddress
	}
	if entry.ExpiresAt != nil {
		t := entry.ExpiresAt.UTC()
		entry.ExpiresAt = &t
	}
	s.mu.Lock()
	s.entries[entry.Address] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, address string) error {
	s.mu.Lock()
	delete(s.entries, address)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	entries := lo.Values(s.entries)
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Address < entries[j].Address })
	return entries, nil
}
