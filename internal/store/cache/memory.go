// Package cache provides model.VerdictCache implementations: an
// in-memory TTL map (the default) and a Redis-backed one sharing the
// teacher's go-redis client for deployments that run the filter chain
// across more than one process.
package cache

import (
	"sync"
	"time"

	"levelcore/internal/model"
)

type memoryEntry struct {
	verdict *model.VerdictSnapshot
	expires time.Time
}

// Memory is an in-process, mutex-guarded TTL cache. It is the default
// model.VerdictCache (config.CacheBackend == "memory"): no external
// dependency is required to run a single scheduler process.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemory creates an empty in-memory verdict cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

// Get returns the cached verdict for key if present and not expired.
func (m *Memory) Get(key string) (*model.VerdictSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || time.Now().After(e.expires) {
		if ok {
			delete(m.entries, key)
		}
		return nil, false
	}
	return e.verdict, true
}

// Set stores v under key with the given ttl.
func (m *Memory) Set(key string, v *model.VerdictSnapshot, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{verdict: v, expires: time.Now().Add(ttl)}
}

// Len reports the number of entries currently held, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Sweep drops every expired entry and reports how many were removed.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	removed := 0
	for k, e := range m.entries {
		if now.After(e.expires) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}
