package redis

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// IncrWindow counts a hit against key in a fixed window of length period
// and returns the count so far.
func (c *Cache) IncrWindow(ctx context.Context, key string, period time.Duration) (int64, error) {
	fullKey := rateKey(key)

	pipe := c.client.Pipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.ExpireNX(ctx, fullKey, period)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, errors.Wrap(err, "redis: rate window")
	}
	return incr.Val(), nil
}
