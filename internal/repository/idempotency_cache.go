package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const idempotencyPrefix = "payments:idem:"

// IdempotencyCache reserves idempotency keys in Redis for the duration of
// an initiate call, catching concurrent duplicates before they reach the
// provider. The store's unique index on idempotency_key stays the durable
// backstop, so the cache fails open when Redis is unreachable.
type IdempotencyCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewIdempotencyCache(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *IdempotencyCache {
	return &IdempotencyCache{rdb: rdb, ttl: ttl, logger: logger}
}

// Reserve claims the key for one in-flight request. It returns false only
// when another request provably holds the key.
func (c *IdempotencyCache) Reserve(ctx context.Context, key string) bool {
	ok, err := c.rdb.SetNX(ctx, idempotencyPrefix+key, "1", c.ttl).Result()
	if err != nil {
		c.logger.Warn("idempotency reservation unavailable, failing open",
			zap.String("key", key),
			zap.Error(err))
		return true
	}
	return ok
}

// Release frees the key so a failed initiate can be retried immediately.
func (c *IdempotencyCache) Release(ctx context.Context, key string) {
	if err := c.rdb.Del(ctx, idempotencyPrefix+key).Err(); err != nil {
		c.logger.Warn("failed to release idempotency key",
			zap.String("key", key),
			zap.Error(err))
	}
}
