package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetMissingKey(t *testing.T) {
	s := NewMemoryStore()

	val, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Equal(t, int64(0), val)
}

func TestMemoryStore_IncrBy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	val, err := s.IncrBy(ctx, "k", 3, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(3), val)

	val, err = s.IncrBy(ctx, "k", 2, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(5), val)
}

func TestMemoryStore_DecrByFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	s.IncrBy(ctx, "k", 2, time.Hour)
	require.NoError(t, s.DecrBy(ctx, "k", 5))

	val, _ := s.Get(ctx, "k")
	assert.Equal(t, int64(0), val)

	// Decrementing a missing key is a no-op
	require.NoError(t, s.DecrBy(ctx, "missing", 1))
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.IncrBy(ctx, "k", 7, 24*time.Hour)

	now = now.Add(23 * time.Hour)
	val, _ := s.Get(ctx, "k")
	assert.Equal(t, int64(7), val)

	now = now.Add(2 * time.Hour)
	val, _ = s.Get(ctx, "k")
	assert.Equal(t, int64(0), val, "counter should expire after its ttl")

	// A write after expiry starts a fresh counter with a fresh ttl
	val, _ = s.IncrBy(ctx, "k", 1, 24*time.Hour)
	assert.Equal(t, int64(1), val)
}

func TestMemoryStore_ConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	const workers = 100

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.IncrBy(ctx, "k", 1, time.Hour)
		}()
	}
	wg.Wait()

	val, _ := s.Get(ctx, "k")
	assert.Equal(t, int64(workers), val)
}
