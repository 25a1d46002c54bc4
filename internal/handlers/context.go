package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hearthly/hearth/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// respondList renders a collection with its size and the server clock.
func respondList[T any](c *gin.Context, items []T) {
	if items == nil {
		items = []T{}
	}
	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{
		Total:      len(items),
		ServerTime: time.Now().UnixMilli(),
	})
}
