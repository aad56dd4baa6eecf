package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/onlyfriends/onlyfriends/internal/phone"
)

const (
	defaultRateLimit = 5
	rateLimitWindow  = time.Minute
)

// PhoneRateLimit limits attempts per phone number within scope, falling back
// to the client IP when the body carries no phone. Formatting variants of one
// number share a bucket. Cache failures let the request through.
func PhoneRateLimit(cache *redis.Client, scope string, maxPerMin int, logger *slog.Logger) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = defaultRateLimit
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		var req struct {
			Phone string `json:"phone_number"`
		}
		_ = c.BodyParser(&req)
		subject := "ip:" + c.IP()
		if strings.TrimSpace(req.Phone) != "" {
			subject = phone.Normalize(req.Phone)
		}

		ctx := c.UserContext()
		key := "rl:" + scope + ":" + subject
		var incr *redis.IntCmd
		var ttlCmd *redis.DurationCmd
		_, err := cache.TxPipelined(ctx, func(p redis.Pipeliner) error {
			incr = p.Incr(ctx, key)
			ttlCmd = p.TTL(ctx, key)
			return nil
		})
		if err != nil {
			logger.Warn("rate limit unavailable", slog.String("scope", scope), slog.Any("error", err))
			return c.Next()
		}
		cnt, ttl := incr.Val(), ttlCmd.Val()
		if ttl < 0 {
			// New bucket, or one that lost its expiry.
			ttl = rateLimitWindow
			if err := cache.Expire(ctx, key, rateLimitWindow).Err(); err != nil {
				logger.Warn("rate limit expiry not set", slog.String("scope", scope), slog.Any("error", err))
			}
		}
		if cnt > int64(maxPerMin) {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(ttl.Seconds()+0.5)))
			logger.Info("rate limited", slog.String("scope", scope), slog.String("subject", phone.Mask(subject)))
			return fiber.NewError(http.StatusTooManyRequests, "too many attempts, try again later")
		}
		return c.Next()
	}
}
