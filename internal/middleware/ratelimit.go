package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"webconf-backend/pkg/logger"
	"webconf-backend/pkg/response"
)

// RateLimiter implements a fixed window Redis rate limit per user, or per IP for anonymous callers
type RateLimiter struct {
	redisClient *redis.Client
	requests    int
	window      time.Duration
}

// NewRateLimiter creates a new rate limiter
// requests: maximum number of requests allowed
// window: time window for the rate limit (e.g., 1 minute)
func NewRateLimiter(redisClient *redis.Client, requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		requests:    requests,
		window:      window,
	}
}

// Middleware returns a Gin middleware for rate limiting
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.requests <= 0 {
			c.Next()
			return
		}

		identifier := "ip:" + c.ClientIP()
		if userID := c.GetString("user_id"); userID != "" {
			identifier = "user:" + userID
		}

		count, resetAt, err := rl.hit(c.Request.Context(), identifier)
		if err != nil {
			// Fail-open: Allow request if Redis is unavailable
			logger.Warn("Rate limit check failed", zap.String("identifier", identifier), zap.Error(err))
			c.Next()
			return
		}

		remaining := rl.requests - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if count > rl.requests {
			response.Error(c, http.StatusTooManyRequests, "RATE_LIMITED", "Rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}

// hit counts the request in the current window and returns the count with the window end
func (rl *RateLimiter) hit(ctx context.Context, identifier string) (int, time.Time, error) {
	now := time.Now()
	windowStart := now.Truncate(rl.window)
	key := fmt.Sprintf("ratelimit:%s:%d", identifier, windowStart.Unix())

	pipe := rl.redisClient.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	return int(incr.Val()), windowStart.Add(rl.window), nil
}
