package quota

import (
	"context"
	"time"
)

// Store is the pluggable counter backend for the ledger.
//
// IncrBy must be atomic with respect to concurrent calls for the same key:
// the returned value is the counter immediately after this call's increment
// was applied. That property is what the ledger's increment-then-check
// commit relies on to keep concurrent requests from jointly exceeding a
// limit.
type Store interface {
	// Get returns the current counter value, 0 for a missing key.
	Get(ctx context.Context, key string) (int64, error)

	// IncrBy atomically adds delta and returns the new value. The ttl
	// applies when the increment creates the key.
	IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)

	// DecrBy atomically subtracts delta, flooring at zero. Used to roll
	// back a guarded increment that overshot its ceiling.
	DecrBy(ctx context.Context, key string, delta int64) error

	Ping(ctx context.Context) error
}
