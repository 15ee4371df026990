package middlewares

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// IssueRateLimiter caps issue creation per user per 24h window using a
// Redis counter with TTL. A nil client disables the limiter.
func IssueRateLimiter(client *redis.Client, keyPrefix string, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if client == nil {
			c.Next()
			return
		}

		userIDVal, _ := c.Get("user_id")
		userID, ok := userIDVal.(string)
		if !ok || userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "user not authenticated"})
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		userKey := keyPrefix + ":" + userID

		count, err := client.Incr(ctx, userKey).Result()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "rate limiter unavailable"})
			c.Abort()
			return
		}

		// TTL starts on the first increment of the window.
		if count == 1 {
			if err := client.Expire(ctx, userKey, 24*time.Hour).Err(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "rate limiter unavailable"})
				c.Abort()
				return
			}
		}

		if count > int64(limit) {
			retryAfter, _ := client.TTL(ctx, userKey).Result()
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success":     false,
				"error":       "rate limit exceeded",
				"retry_after": retryAfter.Seconds(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
