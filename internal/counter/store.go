// Package counter provides the shared atomic counter store backing the
// distributed rate limiter.
package counter

import (
	"context"
	"time"
)

// Store is the narrow contract the rate limiter depends on. Implementations
// must be safe for concurrent use from many worker processes.
type Store interface {
	// IncrementWithExpiry atomically increments the counter at key and
	// returns the post-increment value. The first increment of a key also
	// arms its expiry, after which the counter evaporates.
	IncrementWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Get returns the current counter value, or 0 when the key is absent.
	Get(ctx context.Context, key string) (int64, error)
}
