package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	clock := &manualClock{now: time.Unix(1_700_000_000, 0)}
	r := gin.New()
	r.Use(RateLimit(newMemoryRateStore(clock.Now), 2, time.Minute))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	do := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		return w
	}

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, do().Code)
	}

	limited := do()
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	require.Equal(t, "0", limited.Header().Get("X-RateLimit-Remaining"))
	require.NotEmpty(t, limited.Header().Get("Retry-After"))

	clock.Advance(time.Minute)
	require.Equal(t, http.StatusOK, do().Code)
}

func TestMemoryRateStoreSweepsExpiredWindows(t *testing.T) {
	clock := &manualClock{now: time.Unix(1_700_000_000, 0)}
	store := newMemoryRateStore(clock.Now)
	ctx := context.Background()

	count, ttl, err := store.Increment(ctx, "a", time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Equal(t, time.Second, ttl)

	clock.Advance(2 * time.Second)
	_, _, err = store.Increment(ctx, "b", time.Second)
	require.NoError(t, err)

	_, ok := store.data.Load("a")
	require.False(t, ok)
	require.Equal(t, 1, store.data.Size())
}

func TestRateLimitDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimit(nil, 0, time.Minute))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}
