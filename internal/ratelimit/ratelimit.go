// Package ratelimit enforces per-key scan quotas.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter atomically checks and counts one event for key
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type memoryEntry struct {
	hits    int
	expires time.Time
}

// Memory is an in-process fixed window counter. A key's window opens on its
// first event and closes window later; at most limit events count inside it.
type Memory struct {
	entries map[string]*memoryEntry
	mu      sync.Mutex
	now     func() time.Time
	// sweepAt is the map size that triggers eviction of expired keys
	sweepAt int
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
		sweepAt: 10000,
	}
}

func (m *Memory) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return false, nil
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok || !now.Before(entry.expires) {
		entry = &memoryEntry{expires: now.Add(window)}
		m.entries[key] = entry
		if len(m.entries) > m.sweepAt {
			m.sweep(now)
		}
	}
	if entry.hits >= limit {
		return false, nil
	}
	entry.hits++
	return true, nil
}

func (m *Memory) sweep(now time.Time) {
	for key, entry := range m.entries {
		if !now.Before(entry.expires) {
			delete(m.entries, key)
		}
	}
}
