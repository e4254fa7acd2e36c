package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisOfferQuota caps offers per user per UTC day with a counter key that
// expires after the day ends.
type RedisOfferQuota struct {
	rdb   *redis.Client
	limit int
	now   func() time.Time
}

func NewRedisOfferQuota(rdb *redis.Client, limit int) *RedisOfferQuota {
	return &RedisOfferQuota{rdb: rdb, limit: limit, now: time.Now}
}

func (q *RedisOfferQuota) WithClock(now func() time.Time) *RedisOfferQuota {
	q.now = now
	return q
}

// Allow counts the attempt and reports whether it is within the daily limit.
// A limit of zero or less disables the quota.
func (q *RedisOfferQuota) Allow(ctx context.Context, userID uuid.UUID) (bool, error) {
	if q.limit <= 0 {
		return true, nil
	}
	now := q.now().UTC()
	key := fmt.Sprintf("quota:offers:%s:%s", userID, now.Format("2006-01-02"))

	pipe := q.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, 25*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("offer quota: %w", err)
	}
	return incr.Val() <= int64(q.limit), nil
}
