package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitMiddleware: fixed window per path and caller. Authenticated
// callers are keyed by user id, anonymous ones by IP. Redis errors let the
// request through.
func RateLimitMiddleware(rdb *redis.Client, limit int, window time.Duration, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if limit <= 0 {
			return c.Next()
		}

		caller := c.IP()
		if userID := GetUserID(c); userID != uuid.Nil {
			caller = "u:" + userID.String()
		}
		key := fmt.Sprintf("rl:%s:%s:%s", c.Method(), c.Path(), caller)

		ctx := c.UserContext()
		pipe := rdb.TxPipeline()
		incr := pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		if _, err := pipe.Exec(ctx); err != nil {
			log.Warn("rate limit check failed", zap.String("key", key), zap.Error(err))
			return c.Next() // fail open
		}

		count := incr.Val()
		c.Set("X-RateLimit-Limit", fmt.Sprint(limit))
		if remaining := int64(limit) - count; remaining > 0 {
			c.Set("X-RateLimit-Remaining", fmt.Sprint(remaining))
		} else {
			c.Set("X-RateLimit-Remaining", "0")
		}

		if count > int64(limit) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":      "rate limit exceeded",
				"code":       "rate_limited",
				"request_id": GetRequestID(c),
			})
		}

		return c.Next()
	}
}
