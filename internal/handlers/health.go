package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hearthly/hearth/pkg/response"
)

// Health returns a static liveness payload, used when health monitoring is disabled
// so devices can still probe connectivity.
func Health(household string) gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok", "household": household})
	}
}
