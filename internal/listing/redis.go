package listing

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"jobhub/internal/errors"
)

const versionKey = "jobs:listing:version"

// RedisCache shares listing pages and the catalog version across instances.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// NewRedisClient connects and pings the server.
func NewRedisClient(ctx context.Context, addr string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "redis ping %s", addr)
	}
	return client, nil
}

func (c *RedisCache) Version(ctx context.Context) (int64, error) {
	v, err := c.client.Get(ctx, versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "read listing version")
	}
	return v, nil
}

// Get reads the entry and resets its expiry in one GETEX round trip.
func (c *RedisCache) Get(ctx context.Context, key string) (*Page, bool, error) {
	raw, err := c.client.GetEx(ctx, key, c.ttl).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "get %s", key)
	}

	var page Page
	if err := json.Unmarshal(raw, &page); err != nil {
		// a corrupt entry behaves like a miss and is overwritten by the next Set
		return nil, false, nil
	}
	return &page, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, page *Page) error {
	raw, err := json.Marshal(page)
	if err != nil {
		return errors.Wrap(err, "encode listing page")
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return errors.Wrapf(err, "set %s", key)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, versionKey).Err(); err != nil {
		return errors.Wrap(err, "bump listing version")
	}
	return nil
}
