// Package cache implements the two-tier TTL cache that fronts remote role
// lookups: a process-local memory tier and a redis tier that survives
// restarts within its TTL window.
package cache

import (
	"context"
	"sync"
	"time"
)

// Store is a TTL key/value store. Get and Has perform lazy expiry: an entry
// whose deadline has passed is removed and treated as absent even if Cleanup
// has not run yet.
type Store interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Has(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	Cleanup(ctx context.Context) error
	Clear(ctx context.Context) error
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// Memory is the in-process tier. A background janitor bounds memory for keys
// that are never re-queried; Close stops it.
type Memory struct {
	mu   sync.RWMutex
	data map[string]memoryEntry
	stop chan struct{}
	once sync.Once
}

func NewMemory(sweepInterval time.Duration) *Memory {
	m := &Memory{
		data: make(map[string]memoryEntry),
		stop: make(chan struct{}),
	}
	if sweepInterval > 0 {
		go m.janitor(sweepInterval)
	}
	return m
}

func (m *Memory) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = m.Cleanup(context.Background())
		case <-m.stop:
			return
		}
	}
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	now := time.Now()
	m.mu.RLock()
	entry, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if now.After(entry.expiresAt) {
		m.mu.Lock()
		delete(m.data, key)
		m.mu.Unlock()
		return "", false, nil
	}
	return entry.value, true, nil
}

func (m *Memory) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := m.Get(ctx, key)
	return ok, err
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) Cleanup(_ context.Context) error {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, entry := range m.data {
		if now.After(entry.expiresAt) {
			delete(m.data, key)
		}
	}
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]memoryEntry)
	return nil
}

// Close stops the janitor goroutine. Idempotent.
func (m *Memory) Close() {
	m.once.Do(func() { close(m.stop) })
}

// Len reports the number of resident entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
