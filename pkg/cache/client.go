package cache

import (
	"context"
	"time"
)

// Client is the narrow capability CacheWriter needs from the hot
// key-value store: string GET/SET with TTL, hash fields, and pub/sub
// publish. RedisClient implements it
// against github.com/redis/go-redis/v9; tests use a fake.
type Client interface {
	// Set writes a string key with an optional TTL (ttl<=0 means no
	// expiry).
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Del removes a key. Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error
	// HSet writes one field of a hash key.
	HSet(ctx context.Context, key, field string, value []byte) error
	// Publish fans a payload out to a pub/sub channel.
	Publish(ctx context.Context, channel string, payload []byte) error
}
