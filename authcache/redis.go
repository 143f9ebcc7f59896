package authcache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces verdict keys so a shared Redis can host
// other data alongside.
const DefaultRedisPrefix = "krn:chk:"

// Redis stores verdicts in a shared Redis, letting a fleet of processes
// reuse each other's checks. Entries without a TTL are refused: a shared
// store must not accumulate immortal verdicts.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis wraps an existing Redis client. Standalone, cluster and
// sentinel clients all satisfy [redis.UniversalClient]. prefix is
// prepended to every key; empty means [DefaultRedisPrefix].
func NewRedis(client redis.UniversalClient, prefix string) (*Redis, error) {
	if client == nil {
		return nil, errors.New("authcache: redis client required")
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (bool, bool, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return val == "1", true, nil
}

func (r *Redis) Set(ctx context.Context, key string, allowed bool, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("authcache: redis entries require a ttl")
	}
	val := "0"
	if allowed {
		val = "1"
	}
	return r.client.Set(ctx, r.prefix+key, val, ttl).Err()
}
