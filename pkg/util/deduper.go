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

// AcquireOnce tries to acquire a dedup lock for a message id.
// Returns true the first time, false for a redelivered duplicate.
// If Redis is unavailable the message is allowed through; the batch status
// check downstream still prevents a double fan-out.
func (d *Deduper) AcquireOnce(ctx context.Context, scope, messageID string) bool {
	key := fmt.Sprintf("dedup:%s:%s", scope, messageID)

	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("Redis dedup check failed, allowing processing",
				zap.String("scope", scope),
				zap.String("message_id", messageID),
				zap.Error(err),
			)
		}
		return true
	}

	if !ok && d.logger != nil {
		d.logger.Info("Skipped duplicated message",
			zap.String("scope", scope),
			zap.String("message_id", messageID),
			zap.String("dedup_key", key),
		)
	}

	return ok
}

// Release frees a dedup lock so a requeued message can be processed again.
// Called when handling fails after the lock was acquired.
func (d *Deduper) Release(ctx context.Context, scope, messageID string) {
	key := fmt.Sprintf("dedup:%s:%s", scope, messageID)

	if err := d.rdb.Del(ctx, key).Err(); err != nil && d.logger != nil {
		d.logger.Warn("Failed to release dedup lock",
			zap.String("scope", scope),
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
}
