package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// AcquireOnce tries to acquire a dedup lock for a given scope + key.
// Returns true if this is the FIRST time processing, false on a duplicate.
// When redis is unavailable we allow processing rather than drop work;
// downstream handlers are idempotent anyway.
func (d *Deduper) AcquireOnce(ctx context.Context, scope, key string) bool {
	dedupKey := fmt.Sprintf("dedup:%s:%s", scope, key)

	ok, err := d.rdb.SetNX(ctx, dedupKey, 1, d.ttl).Result()
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("Redis dedup check failed, allowing processing",
				zap.String("scope", scope),
				zap.String("key", key),
				zap.Error(err),
			)
		}
		return true
	}

	if !ok && d.logger != nil {
		d.logger.Info("Skipped duplicated event",
			zap.String("scope", scope),
			zap.String("key", key),
			zap.String("dedup_key", dedupKey),
		)
	}

	return ok
}

// Release drops an acquired dedup key so a redelivery of the same event gets
// processed again. Call it when handling fails after acquisition; otherwise
// the retry would be swallowed as a duplicate.
func (d *Deduper) Release(ctx context.Context, scope, key string) {
	dedupKey := fmt.Sprintf("dedup:%s:%s", scope, key)
	if err := d.rdb.Del(ctx, dedupKey).Err(); err != nil && d.logger != nil {
		d.logger.Warn("Failed to release dedup key",
			zap.String("dedup_key", dedupKey),
			zap.Error(err),
		)
	}
}
