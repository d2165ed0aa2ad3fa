package quota

import (
	"context"
	"strconv"
	"time"

	"github.com/marcho78/prompt2json/internal/storage"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps counters in a shared Redis, which makes the ledger
// correct across multiple API instances. INCRBY is atomic server-side.
type RedisStore struct {
	redis *storage.RedisClient
}

func NewRedisStore(redis *storage.RedisClient) *RedisStore {
	return &RedisStore{redis: redis}
}

func (r *RedisStore) Get(ctx context.Context, key string) (int64, error) {
	val, err := r.redis.Get(ctx, key)
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, err
	}

	return count, nil
}

func (r *RedisStore) IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	count, err := r.redis.IncrBy(ctx, key, delta)
	if err != nil {
		return 0, err
	}

	// First write created the key, attach the expiry
	if count == delta {
		r.redis.Expire(ctx, key, ttl)
	}

	return count, nil
}

func (r *RedisStore) DecrBy(ctx context.Context, key string, delta int64) error {
	count, err := r.redis.DecrBy(ctx, key, delta)
	if err != nil {
		return err
	}

	// Rollbacks never race the counter below zero in practice, but a key
	// expiring mid-call can. Clamp rather than leave a negative counter.
	if count < 0 {
		r.redis.IncrBy(ctx, key, -count)
	}

	return nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.redis.Ping(ctx)
}
