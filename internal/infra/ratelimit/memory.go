package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps hit logs in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	hits map[string][]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		hits: make(map[string][]time.Time),
	}
}

func (m *MemoryStore) Take(_ context.Context, id string, now time.Time, window time.Duration, limit int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hits := inWindow(m.hits[id], now.Add(-window))
	if len(hits) >= limit {
		m.hits[id] = hits
		return false, nil
	}

	m.hits[id] = append(hits, now)
	return true, nil
}

func (m *MemoryStore) Count(_ context.Context, id string, now time.Time, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := now.Add(-window)
	count := 0
	for _, at := range m.hits[id] {
		if at.After(cutoff) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) Prune(_ context.Context, cutoff time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, hits := range m.hits {
		kept := inWindow(hits, cutoff)
		if len(kept) == 0 {
			delete(m.hits, id)
			continue
		}
		m.hits[id] = kept
	}
	return nil
}

// Identifiers reports how many clients currently hold hits.
func (m *MemoryStore) Identifiers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hits)
}

// inWindow returns the suffix of the ascending log strictly after cutoff.
func inWindow(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return hits
	}
	kept := make([]time.Time, len(hits)-i)
	copy(kept, hits[i:])
	return kept
}
