package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/smartnotes/core/internal/pkg/response"
)

const rateLimitWindow = time.Minute

// RateLimit enforces a fixed one-minute window of max requests per client IP.
// Redis failures let the request through.
func RateLimit(rdb *redis.Client, max int) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" || max <= 0 {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		now := time.Now()
		window := now.Unix() / int64(rateLimitWindow/time.Second)
		key := fmt.Sprintf("smartnotes:rate_limit:%s:%d", ip, window)

		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			c.Next()
			return
		}
		if count == 1 {
			rdb.Expire(ctx, key, rateLimitWindow+time.Second)
		}

		if count > int64(max) {
			remaining := rateLimitWindow - time.Duration(now.Unix()%int64(rateLimitWindow/time.Second))*time.Second
			response.TooManyRequests(c, strconv.Itoa(int(remaining/time.Second)))
			return
		}

		c.Next()
	}
}
