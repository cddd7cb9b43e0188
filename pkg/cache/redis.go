package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig carries the connection settings a go-redis/v9 client needs.
type RedisConfig struct {
	Addr string
	Username string
	Password string
	DB int
	DialTimeout time.Duration
	ReadTimeout time.Duration
	WriteTimeout time.Duration
	MaxRetries int
}

// RedisClient adapts *redis.Client to the Client interface.
type RedisClient struct {
	rdb *redis.Client
}

// NewRedisClient dials a Redis client from cfg. It does not verify
// connectivity; callers should Ping if they want a fail-fast check.
func NewRedisClient(cfg RedisConfig) *RedisClient {
	return &RedisClient{rdb: redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB: cfg.DB,
		DialTimeout: cfg.DialTimeout,
		ReadTimeout: cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries: cfg.MaxRetries,
	})}
}

// Ping verifies connectivity, used by cmd/collector at startup.
func (c *RedisClient) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *RedisClient) Close() error {
	return c.rdb.Close()
}

func (c *RedisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *RedisClient) Del(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

func (c *RedisClient) HSet(ctx context.Context, key, field string, value []byte) error {
	return c.rdb.HSet(ctx, key, field, value).Err()
}

func (c *RedisClient) Publish(ctx context.Context, channel string, payload []byte) error {
	return c.rdb.Publish(ctx, channel, payload).Err()
}

var _ Client = (*RedisClient)(nil)
