package cache

import (
	"context"
	"sync"
	"time"

	"github.com/sells-group/feedscrape/internal/model"
)

// Store holds result sets by cache key.
type Store interface {
	// Get returns the live entry for key. Expired entries are misses.
	Get(ctx context.Context, key string) (model.ResultSet, bool, error)
	// Set stores rs under key until ttl elapses.
	Set(ctx context.Context, key string, rs model.ResultSet, ttl time.Duration) error
	// Clear removes every entry and returns how many there were.
	Clear(ctx context.Context) (int, error)
	// Len returns the number of stored entries, live or not yet swept.
	Len() int
}

// Memory is an in-process Store bounded to maxEntries. When full, the
// oldest entry is evicted.
type Memory struct {
	mu         sync.RWMutex
	entries    map[string]memoryEntry
	order      []string // insertion order: front=oldest
	maxEntries int

	nowFunc func() time.Time
}

type memoryEntry struct {
	rs        model.ResultSet
	expiresAt time.Time
}

// NewMemory creates a Memory store. maxEntries <= 0 means 100.
func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return &Memory{
		entries:    make(map[string]memoryEntry),
		maxEntries: maxEntries,
		nowFunc:    time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) (model.ResultSet, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return model.ResultSet{}, false, nil
	}

	if !m.nowFunc().Before(entry.expiresAt) {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && cur.expiresAt.Equal(entry.expiresAt) {
			delete(m.entries, key)
			m.removeFromOrder(key)
		}
		m.mu.Unlock()
		return model.ResultSet{}, false, nil
	}
	return entry.rs, true, nil
}

func (m *Memory) Set(_ context.Context, key string, rs model.ResultSet, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := memoryEntry{rs: rs, expiresAt: m.nowFunc().Add(ttl)}
	if _, ok := m.entries[key]; ok {
		m.entries[key] = entry
		m.removeFromOrder(key)
		m.order = append(m.order, key)
		return nil
	}

	for len(m.entries) >= m.maxEntries && len(m.order) > 0 {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.entries, oldest)
	}

	m.entries[key] = entry
	m.order = append(m.order, key)
	return nil
}

func (m *Memory) Clear(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.entries)
	m.entries = make(map[string]memoryEntry)
	m.order = nil
	return n, nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) removeFromOrder(key string) {
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

var _ Store = (*Memory)(nil)
