package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Anonymous: TierLimits{
			DailyRequests:       10,
			DailyTokens:         50000,
			MaxTokensPerRequest: 5000,
		},
		Registered: TierLimits{
			DailyRequests:       50,
			DailyTokens:         200000,
			MaxTokensPerRequest: 10000,
		},
		WarningThreshold: 0.8,
		EndpointLimits: map[string]EndpointLimit{
			"generate-prompt": {Anonymous: 10, Registered: 30},
			"optimize-prompt": {Anonymous: 5, Registered: 20},
			"test-prompt":     {Anonymous: 5, Registered: 20},
			"batch-generate":  {Registered: 5},
		},
	}
}

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	return NewLedger(NewMemoryStore(), testConfig())
}

func TestCheckAndConsume_AccumulatesUsage(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	costs := []int64{1000, 2500, 400}
	var total int64

	for i, cost := range costs {
		dec, err := l.CheckAndConsume(ctx, "ip:203.0.113.9:a1b2c3d4", cost, "general", false)
		require.NoError(t, err)

		total += cost
		assert.Equal(t, int64(i+1), dec.Usage.RequestsUsed)
		assert.Equal(t, total, dec.Usage.TokensUsed)
		assert.Equal(t, "anonymous", dec.UserType)
		assert.False(t, dec.Degraded)
	}
}

func TestCheckAndConsume_RejectionMutatesNothing(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	_, err := l.CheckAndConsume(ctx, "user:7", 2000, "general", true)
	require.NoError(t, err)

	before := l.UsageStats(ctx, "user:7", true)

	// Per-request ceiling rejection
	_, err = l.CheckAndConsume(ctx, "user:7", 12000, "general", true)
	le, ok := AsLimitError(err)
	require.True(t, ok)
	assert.Equal(t, KindRequestTooLarge, le.Kind)
	assert.Equal(t, int64(12000), le.Requested)
	assert.Equal(t, int64(10000), le.Limit)

	after := l.UsageStats(ctx, "user:7", true)
	assert.Equal(t, before.Usage, after.Usage)
}

func TestCheckAndConsume_TokenBoundary(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	key := "user:7"

	// Burn down to exactly 4000 tokens remaining
	for i := 0; i < 20; i++ {
		_, err := l.CheckAndConsume(ctx, key, 9800, "general", true)
		require.NoError(t, err)
	}

	// 196000 used, 4000 left: exact remaining balance is admitted
	dec, err := l.CheckAndConsume(ctx, key, 4000, "general", true)
	require.NoError(t, err)
	assert.Equal(t, int64(200000), dec.Usage.TokensUsed)
	assert.Equal(t, int64(0), dec.Usage.TokensRemaining)

	// One more token is over
	_, err = l.CheckAndConsume(ctx, key, 1, "general", true)
	le, ok := AsLimitError(err)
	require.True(t, ok)
	assert.Equal(t, KindDailyTokenLimitExceeded, le.Kind)
	assert.Equal(t, int64(200000), le.Used)
}

func TestCheckAndConsume_RequestBoundary(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	key := "ip:203.0.113.9:a1b2c3d4"

	for i := 0; i < 10; i++ {
		_, err := l.CheckAndConsume(ctx, key, 100, "general", false)
		require.NoError(t, err, "request %d should be admitted", i+1)
	}

	_, err := l.CheckAndConsume(ctx, key, 100, "general", false)
	le, ok := AsLimitError(err)
	require.True(t, ok)
	assert.Equal(t, KindDailyRequestLimitExceeded, le.Kind)
	assert.Equal(t, int64(10), le.Limit)
	assert.Equal(t, int64(10), le.Used)
	assert.Equal(t, "/api/v1/auth/register", le.UpgradeURL)
}

func TestCheckAndConsume_AnonymousScenario(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	key := "ip:198.51.100.7:deadbeef"

	var last *Decision
	for i := 0; i < 10; i++ {
		dec, err := l.CheckAndConsume(ctx, key, 4000, "general", false)
		require.NoError(t, err)
		last = dec
	}

	assert.Equal(t, int64(40000), last.Usage.TokensUsed)
	assert.True(t, last.NearRequestLimit)

	_, err := l.CheckAndConsume(ctx, key, 1, "general", false)
	le, ok := AsLimitError(err)
	require.True(t, ok)
	assert.Equal(t, KindDailyRequestLimitExceeded, le.Kind)
}

func TestCheckAndConsume_EndpointSubLimit(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	key := "ip:198.51.100.7:deadbeef"

	for i := 0; i < 10; i++ {
		_, err := l.CheckAndConsume(ctx, key, 100, "generate-prompt", false)
		require.NoError(t, err)
	}

	// Both the endpoint cap and the global request cap are exhausted.
	// The endpoint check comes first in evaluation order, so it wins.
	_, err := l.CheckAndConsume(ctx, key, 100, "generate-prompt", false)
	le, ok := AsLimitError(err)
	require.True(t, ok)
	assert.Equal(t, KindEndpointLimitExceeded, le.Kind)
	assert.Equal(t, "generate-prompt", le.Endpoint)
	assert.Equal(t, int64(10), le.Limit)
}

func TestCheckAndConsume_EndpointWithoutSubLimit(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	// batch-generate has no anonymous cap configured; only the global
	// limits apply.
	for i := 0; i < 10; i++ {
		_, err := l.CheckAndConsume(ctx, "ip:1:x", 100, "batch-generate", false)
		require.NoError(t, err)
	}

	_, err := l.CheckAndConsume(ctx, "ip:1:x", 100, "batch-generate", false)
	le, ok := AsLimitError(err)
	require.True(t, ok)
	assert.Equal(t, KindDailyRequestLimitExceeded, le.Kind)
}

func TestCheckAndConsume_IndependentIdentities(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	for i := 0; i < 10; i++ {
		_, err := l.CheckAndConsume(ctx, "ip:a:1", 100, "general", false)
		require.NoError(t, err)
	}

	// A different identity still has its full allowance
	dec, err := l.CheckAndConsume(ctx, "ip:b:2", 100, "general", false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dec.Usage.RequestsUsed)
}

func TestCheckAndConsume_DayRollover(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	now := time.Date(2025, 6, 1, 23, 59, 59, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		_, err := l.CheckAndConsume(ctx, "ip:a:1", 100, "general", false)
		require.NoError(t, err)
	}
	_, err := l.CheckAndConsume(ctx, "ip:a:1", 100, "general", false)
	require.Error(t, err)

	// Two seconds later it is a new UTC day and a fresh counter
	now = time.Date(2025, 6, 2, 0, 0, 1, 0, time.UTC)

	dec, err := l.CheckAndConsume(ctx, "ip:a:1", 100, "general", false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dec.Usage.RequestsUsed)
	assert.Equal(t, time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC), dec.ResetTime)
}

func TestCheckAndConsume_Concurrency(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	key := "ip:203.0.113.9:a1b2c3d4"

	const workers = 50 // well above the anonymous cap of 10

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted, rejected := 0, 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.CheckAndConsume(ctx, key, 100, "general", false)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				admitted++
			} else {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, admitted)
	assert.Equal(t, 40, rejected)

	snap := l.UsageStats(ctx, key, false)
	assert.Equal(t, int64(10), snap.Usage.RequestsUsed)
	assert.Equal(t, int64(1000), snap.Usage.TokensUsed)
}

func TestCheckAndConsume_WarningFlags(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	var dec *Decision
	for i := 0; i < 8; i++ {
		var err error
		dec, err = l.CheckAndConsume(ctx, "ip:a:1", 100, "general", false)
		require.NoError(t, err)
	}

	// 8/10 requests used hits the 0.8 warning threshold
	assert.True(t, dec.NearRequestLimit)
	assert.False(t, dec.NearTokenLimit)
	assert.InDelta(t, 80.0, dec.RequestUsagePercent, 0.01)
}

func TestUsageStats_ReadOnly(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	_, err := l.CheckAndConsume(ctx, "user:7", 5000, "general", true)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		snap := l.UsageStats(ctx, "user:7", true)
		assert.Equal(t, int64(1), snap.Usage.RequestsUsed)
		assert.Equal(t, int64(5000), snap.Usage.TokensUsed)
		assert.Equal(t, int64(49), snap.Usage.RequestsRemaining)
		assert.InDelta(t, 2.5, snap.TokenUsagePercent, 0.01)
	}
}

func TestUsageStats_FreshIdentity(t *testing.T) {
	l := newTestLedger(t)

	snap := l.UsageStats(context.Background(), "ip:new:1", false)
	assert.Equal(t, int64(0), snap.Usage.RequestsUsed)
	assert.Equal(t, int64(10), snap.Usage.RequestsRemaining)
	assert.Equal(t, int64(50000), snap.Usage.TokensRemaining)
	assert.False(t, snap.Degraded)
}

// failingStore simulates an unreachable backend.
type failingStore struct{}

var errStoreDown = errors.New("connection refused")

func (failingStore) Get(ctx context.Context, key string) (int64, error) {
	return 0, errStoreDown
}

func (failingStore) IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	return 0, errStoreDown
}

func (failingStore) DecrBy(ctx context.Context, key string, delta int64) error {
	return errStoreDown
}

func (failingStore) Ping(ctx context.Context) error { return errStoreDown }

func TestCheckAndConsume_FailOpenOnStoreFailure(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(failingStore{}, testConfig())

	dec, err := l.CheckAndConsume(ctx, "ip:a:1", 1000, "generate-prompt", false)
	require.NoError(t, err, "store failure must not reject the request")
	assert.True(t, dec.Degraded)
	assert.Equal(t, int64(1), dec.Usage.RequestsUsed)
	assert.Equal(t, int64(1000), dec.Usage.TokensUsed)
}

func TestCheckAndConsume_FailOpenStillEnforcesRequestSize(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(failingStore{}, testConfig())

	// The per-request ceiling needs no store read, so it holds even when
	// the backend is down.
	_, err := l.CheckAndConsume(ctx, "ip:a:1", 6000, "general", false)
	le, ok := AsLimitError(err)
	require.True(t, ok)
	assert.Equal(t, KindRequestTooLarge, le.Kind)
}

func TestUsageStats_DegradedOnStoreFailure(t *testing.T) {
	l := NewLedger(failingStore{}, testConfig())

	snap := l.UsageStats(context.Background(), "user:7", true)
	assert.True(t, snap.Degraded)
	assert.Equal(t, int64(0), snap.Usage.RequestsUsed)
}

func TestNextReset(t *testing.T) {
	l := newTestLedger(t)
	l.now = func() time.Time {
		return time.Date(2025, 6, 1, 15, 4, 5, 0, time.UTC)
	}

	assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), l.nextReset())

	// At exactly midnight the reset is the *next* midnight
	l.now = func() time.Time {
		return time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	}
	assert.Equal(t, time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC), l.nextReset())
}
