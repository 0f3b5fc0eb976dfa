package pagecache

import (
	"container/list"
	"context"
	"sync"
)

// MemoryStore is a size-bounded in-memory LRU store. It is the default
// first-level store of the cache.
type MemoryStore struct {
	mu         sync.Mutex
	maxEntries int
	order      *list.List
	items      map[string]*list.Element
}

type memoryItem struct {
	key   string
	entry *Entry
}

// NewMemoryStore creates an LRU store keeping at most maxEntries entries.
// maxEntries <= 0 means unbounded.
func NewMemoryStore(maxEntries int) *MemoryStore {
	return &MemoryStore{
		maxEntries: maxEntries,
		order:      list.New(),
		items:      make(map[string]*list.Element),
	}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, key string) (*Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	m.order.MoveToFront(el)
	return el.Value.(*memoryItem).entry, true, nil
}

// Set implements Store.
func (m *MemoryStore) Set(_ context.Context, key string, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.items[key]; ok {
		el.Value.(*memoryItem).entry = entry
		m.order.MoveToFront(el)
		return nil
	}
	m.items[key] = m.order.PushFront(&memoryItem{key: key, entry: entry})
	if m.maxEntries > 0 {
		for m.order.Len() > m.maxEntries {
			oldest := m.order.Back()
			if oldest == nil {
				break
			}
			m.order.Remove(oldest)
			delete(m.items, oldest.Value.(*memoryItem).key)
		}
	}
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.items[key]; ok {
		m.order.Remove(el)
		delete(m.items, key)
	}
	return nil
}

// Len returns the number of stored entries.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}
