package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/viant/shmcache/model"
)

// Memory is an in-process Registry. Inserts and removes are exclusive,
// lookups are shared. Entries are copied on the way in and out.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*model.CacheEntry
}

// Insert adds an entry
func (m *Memory) Insert(_ context.Context, entry *model.CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("entry was nil")
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[entry.Name]; ok {
		return fmt.Errorf("%w: %q", ErrAlreadyExists, entry.Name)
	}
	m.entries[entry.Name] = entry.Clone()
	return nil
}

// Lookup returns an entry by name
func (m *Memory) Lookup(_ context.Context, name string) (*model.CacheEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[name]
	if !ok {
		return nil, nil
	}
	return entry.Clone(), nil
}

// Remove deletes an entry by name
func (m *Memory) Remove(_ context.Context, name string) (*model.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[name]
	if !ok {
		return nil, nil
	}
	delete(m.entries, name)
	return entry, nil
}

// Len returns number of entries
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// List returns entries ordered by name
func (m *Memory) List() []*model.CacheEntry {
	m.mu.RLock()
	ret := make([]*model.CacheEntry, 0, len(m.entries))
	for _, entry := range m.entries {
		ret = append(ret, entry.Clone())
	}
	m.mu.RUnlock()
	sort.Slice(ret, func(i, j int) bool { return ret[i].Name < ret[j].Name })
	return ret
}

// NewMemory creates an empty registry
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*model.CacheEntry)}
}

var _ Registry = (*Memory)(nil)
