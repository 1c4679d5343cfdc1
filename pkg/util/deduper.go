package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper claims one-shot keys in Redis (SET NX with TTL).
// A nil *Deduper claims everything.
type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	if rdb == nil {
		return nil
	}
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// AcquireOnce returns true the first time handler+id is claimed within the TTL.
// Redis errors fail open: processing is allowed.
func (d *Deduper) AcquireOnce(ctx context.Context, handler string, id string) bool {
	if d == nil {
		return true
	}

	key := FormatDedupKey(handler, id)
	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		d.logger.Warn("Redis dedup check failed, allowing processing",
			zap.String("handler", handler),
			zap.String("id", id),
			zap.Error(err),
		)
		return true
	}

	if !ok {
		d.logger.Info("Skipped duplicated event",
			zap.String("handler", handler),
			zap.String("dedup_key", key),
		)
	}
	return ok
}

// FormatDedupKey formats the Redis key for handler and id
func FormatDedupKey(handler string, id string) string {
	return fmt.Sprintf("licensewatch:dedup:%s:%s", handler, id)
}
