package authcache

import (
	"context"
	"time"
)

// Cache stores authorization verdicts under opaque keys. Implementations
// must be safe for concurrent use.
type Cache interface {
	// Get returns the cached verdict for key. found is false when the
	// key is absent or expired; allowed is meaningful only when found.
	Get(ctx context.Context, key string) (allowed, found bool, err error)
	// Set stores a verdict. ttl <= 0 means the entry does not expire on
	// its own (it can still be evicted).
	Set(ctx context.Context, key string, allowed bool, ttl time.Duration) error
}
