package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"dating_platform/internal/logger"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
)

// NewRedisClient connects to Redis for rate limiting. It returns nil when
// addr is empty or the server does not answer, and callers fall back to
// in-memory counting.
func NewRedisClient(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, rate limiting falls back to memory", "addr", addr, "error", err)
		_ = client.Close()
		return nil
	}
	logger.Info("redis connected", "addr", addr)
	return client
}

// RateLimiter implements fixed-window limits with Redis INCR/EXPIRE, using a
// process-local window when Redis is nil or erroring.
type RateLimiter struct {
	client *redis.Client
	local  *memoryWindow
	now    func() time.Time
}

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client, local: newMemoryWindow(), now: time.Now}
}

func (l *RateLimiter) count(ctx context.Context, c *gin.Context, key string, window time.Duration) int64 {
	if l.client != nil {
		val, err := l.client.Incr(ctx, key).Result()
		if err == nil {
			if val == 1 {
				l.client.Expire(ctx, key, window)
			}
			return val
		}
		c.Header("X-RateLimit-Error", "redis-error")
	}
	return l.local.incr(key, window, l.now())
}

func (l *RateLimiter) enforce(c *gin.Context, label, key string, maxRequests int, window time.Duration) {
	val := l.count(c.Request.Context(), c, key, window)

	c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(max(0, int64(maxRequests)-val), 10))

	if val > int64(maxRequests) {
		RLBlocked.WithLabelValues(label).Inc()
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":       "rate limit exceeded",
			"code":        "rate_limited",
			"retry_after": int(window.Seconds()),
		})
		return
	}

	RLRequests.WithLabelValues(label).Inc()
	c.Next()
}

// PerIP limits by client IP.
// key format: rl:<window_seconds>:<ip>
func (l *RateLimiter) PerIP(maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "rl:" + strconv.FormatInt(int64(window.Seconds()), 10) + ":" + c.ClientIP()
		l.enforce(c, c.FullPath(), key, maxRequests, window)
	}
}

// PerUser limits by authenticated user, so it must run after Auth. scope
// keeps separate budgets apart, e.g. "payment".
func (l *RateLimiter) PerUser(scope string, maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		userIDVal, exists := c.Get("user_id")
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "unauthorized"})
			return
		}
		userID, ok := userIDVal.(int64)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid user", "code": "unauthorized"})
			return
		}

		key := scope + "_rl:" + strconv.FormatInt(userID, 10) + ":" + strconv.FormatInt(int64(window.Seconds()), 10)
		l.enforce(c, scope+":"+c.FullPath(), key, maxRequests, window)
	}
}
