// Package storage provides the persistence backends for the response cache.
package storage

import (
	"context"
	"sync"
	"time"
)

// Backend stores serialized responses under request fingerprints.
type Backend interface {
	// Get returns the payload for key, reporting whether a live entry
	// exists. Expired entries count as absent.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores payload under key for ttl.
	Set(ctx context.Context, key, payload string, ttl time.Duration) error

	// Delete removes key if present.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

type memoryEntry struct {
	payload   string
	expiresAt time.Time
}

// MemoryBackend is an in-process Backend with a hard entry cap. When the
// cap is reached the oldest entry by insertion order is evicted.
type MemoryBackend struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	order      []string
	maxEntries int

	// now is swappable for tests.
	now func() time.Time
}

// NewMemoryBackend creates a MemoryBackend capped at maxEntries. Zero or
// negative means 4096.
func NewMemoryBackend(maxEntries int) *MemoryBackend {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	return &MemoryBackend{
		entries:    make(map[string]memoryEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (m *MemoryBackend) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	if m.now().After(entry.expiresAt) {
		delete(m.entries, key)
		return "", false, nil
	}
	return entry.payload, true, nil
}

func (m *MemoryBackend) Set(_ context.Context, key, payload string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[key]; !exists {
		// Evict by insertion order until there is room. Stale order slots
		// left behind by Delete are skipped for free.
		for len(m.entries) >= m.maxEntries && len(m.order) > 0 {
			oldest := m.order[0]
			m.order = m.order[1:]
			delete(m.entries, oldest)
		}
		m.order = append(m.order, key)
	}
	m.entries[key] = memoryEntry{payload: payload, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemoryBackend) Close() error { return nil }
