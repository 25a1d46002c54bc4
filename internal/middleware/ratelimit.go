package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hearthly/hearth/pkg/errors"
	"github.com/hearthly/hearth/pkg/logger"
	"github.com/hearthly/hearth/pkg/response"
)

// ErrTooManyRequests is rendered when a client exceeds its request budget.
var ErrTooManyRequests = errors.New("RATE_LIMITED", "Too many requests", http.StatusTooManyRequests)

// RateLimit limits requests per (client IP, route) within a fixed window.
// A nil store falls back to an in-memory store.
func RateLimit(store RateStore, maxRequests int, window time.Duration) gin.HandlerFunc {
	if store == nil {
		store = NewMemoryRateStore()
	}

	return func(c *gin.Context) {
		if maxRequests <= 0 || window <= 0 {
			c.Next()
			return
		}

		key := c.ClientIP() + "|" + c.FullPath()
		count, ttl, err := store.Increment(c.Request.Context(), key, window)
		if err != nil {
			logger.WithModule("http").Warn("rate limit store failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(0, maxRequests-count)))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(ttl.Seconds())))

		if count > maxRequests {
			c.Header("Retry-After", strconv.Itoa(max(1, int(ttl.Seconds()))))
			response.Error(c, ErrTooManyRequests)
			c.Abort()
			return
		}

		c.Next()
	}
}
