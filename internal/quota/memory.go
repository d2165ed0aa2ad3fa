package quota

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local counter store guarded by a mutex.
// Counters do not coordinate across processes, so this backend is only
// correct for a single-instance deployment. Expiry is checked lazily on
// access; keys share the daily reset boundary so stale entries are bounded.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter
	now      func() time.Time
}

type memoryCounter struct {
	value     int64
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]*memoryCounter),
		now:      time.Now,
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.counters[key]
	if !ok || m.expired(c) {
		return 0, nil
	}

	return c.value, nil
}

func (m *MemoryStore) IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.counters[key]
	if !ok || m.expired(c) {
		c = &memoryCounter{expiresAt: m.now().Add(ttl)}
		m.counters[key] = c
	}

	c.value += delta
	return c.value, nil
}

func (m *MemoryStore) DecrBy(ctx context.Context, key string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.counters[key]
	if !ok || m.expired(c) {
		return nil
	}

	c.value -= delta
	if c.value < 0 {
		c.value = 0
	}

	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) expired(c *memoryCounter) bool {
	return !m.now().Before(c.expiresAt)
}
