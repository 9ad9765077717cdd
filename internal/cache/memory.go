package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// Memory is a process-local Cache. Expired entries are dropped lazily on read.
type Memory[T any] struct {
	mu    sync.RWMutex
	items map[string]memoryEntry[T]
	now   func() time.Time
}

func NewMemory[T any]() *Memory[T] {
	return &Memory[T]{
		items: make(map[string]memoryEntry[T]),
		now:   time.Now,
	}
}

func (m *Memory[T]) Get(_ context.Context, key string) (T, bool, error) {
	var zero T
	m.mu.RLock()
	entry, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return zero, false, nil
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		m.mu.Lock()
		if current, still := m.items[key]; still && current.expiresAt.Equal(entry.expiresAt) {
			delete(m.items, key)
		}
		m.mu.Unlock()
		return zero, false, nil
	}
	return entry.value, true, nil
}

func (m *Memory[T]) Put(_ context.Context, key string, value T, ttl time.Duration) error {
	entry := memoryEntry[T]{value: value}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.items[key] = entry
	m.mu.Unlock()
	return nil
}

func (m *Memory[T]) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
