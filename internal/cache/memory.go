package cache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSize is the default number of responses kept by MemoryStore.
const DefaultSize = 1024

// MemoryStore is a bounded in-process Store with least-recently-used eviction.
type MemoryStore struct {
	entries *lru.Cache[string, *Entry]
}

// NewMemoryStore creates a MemoryStore holding at most size entries.
func NewMemoryStore(size int) (*MemoryStore, error) {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := lru.New[string, *Entry](size)
	if err != nil {
		return nil, fmt.Errorf("cache: new memory store: %w", err)
	}
	return &MemoryStore{entries: c}, nil
}

func (m *MemoryStore) Fetch(key string) (*Entry, error) {
	e, ok := m.entries.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	return cloneEntry(e), nil
}

func (m *MemoryStore) Save(key string, e *Entry) error {
	m.entries.Add(key, cloneEntry(e))
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.entries.Remove(key)
	return nil
}

func (m *MemoryStore) Clear() error {
	m.entries.Purge()
	return nil
}

func (m *MemoryStore) Has(key string) (bool, error) {
	return m.entries.Contains(key), nil
}

func (m *MemoryStore) Keys() ([]string, error) {
	return m.entries.Keys(), nil
}

// Len returns the number of stored entries.
func (m *MemoryStore) Len() int {
	return m.entries.Len()
}

func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
