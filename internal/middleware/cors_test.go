package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestCORSAnswersPreflightFromHouseholdDevices(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handled := 0
	r := gin.New()
	r.Use(CORS())
	r.PUT("/api/chores/:id", func(c *gin.Context) {
		handled++
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
	})

	preflight := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/chores/c1", nil)
	req.Header.Set("Origin", "http://kitchen-tablet.local:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	r.ServeHTTP(preflight, req)

	require.Equal(t, http.StatusNoContent, preflight.Code)
	require.Zero(t, handled)
	require.Equal(t, "*", preflight.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "600", preflight.Header().Get("Access-Control-Max-Age"))
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete} {
		require.Contains(t, preflight.Header().Get("Access-Control-Allow-Methods"), method)
	}
	require.Contains(t, preflight.Header().Get("Access-Control-Allow-Headers"), "Authorization")

	w := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/api/chores/c1", nil)
	req.Header.Set("Origin", "http://kitchen-tablet.local:5173")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, handled)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	require.JSONEq(t, `{"id":"c1"}`, w.Body.String())
}
