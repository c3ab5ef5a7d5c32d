package photo

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Get for unknown or expired keys.
var ErrCacheMiss = errors.New("photo cache miss")

// BlobCache is the temporary store for normalized photo bytes.
type BlobCache interface {
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// RedisBlobCache backs the photo cache with Redis; entries expire via TTL,
// there is no other eviction.
type RedisBlobCache struct {
	rdb *redis.Client
}

func NewRedisBlobCache(rdb *redis.Client) *RedisBlobCache {
	return &RedisBlobCache{rdb: rdb}
}

func (c *RedisBlobCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, data, ttl).Err()
}

func (c *RedisBlobCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return data, err
}
