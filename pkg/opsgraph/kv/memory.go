package kv

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for testing and single-run tools.
// Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]map[string]storedItem
	closed bool
}

type storedItem struct {
	value     []byte
	updatedAt time.Time
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: make(map[string]map[string]storedItem),
	}
}

// Put implements Store.
func (m *MemoryStore) Put(ctx context.Context, table, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	if m.tables[table] == nil {
		m.tables[table] = make(map[string]storedItem)
	}

	// Copy to avoid retaining the caller's slice.
	stored := make([]byte, len(value))
	copy(stored, value)

	m.tables[table][key] = storedItem{
		value:     stored,
		updatedAt: time.Now().UTC(),
	}
	return nil
}

// Get implements Store.
func (m *MemoryStore) Get(ctx context.Context, table, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	tbl, ok := m.tables[table]
	if !ok {
		return nil, ErrNotFound
	}
	it, ok := tbl[key]
	if !ok {
		return nil, ErrNotFound
	}

	result := make([]byte, len(it.value))
	copy(result, it.value)
	return result, nil
}

// List implements Store.
func (m *MemoryStore) List(ctx context.Context, table string) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	tbl, ok := m.tables[table]
	if !ok {
		return []Item{}, nil
	}

	items := make([]Item, 0, len(tbl))
	for key, it := range tbl {
		value := make([]byte, len(it.value))
		copy(value, it.value)
		items = append(items, Item{
			Table:     table,
			Key:       key,
			Value:     value,
			UpdatedAt: it.updatedAt,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].Key < items[j].Key
	})
	return items, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(ctx context.Context, table, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	if tbl, ok := m.tables[table]; ok {
		delete(tbl, key)
	}
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.tables = nil
	return nil
}

// Len returns the total number of items across all tables.
// Useful for testing.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, tbl := range m.tables {
		count += len(tbl)
	}
	return count
}
