package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hearthly/hearth/internal/api"
	"github.com/hearthly/hearth/internal/app"
	iauth "github.com/hearthly/hearth/internal/auth"
	"github.com/hearthly/hearth/internal/database"
	sharedtestutil "github.com/hearthly/hearth/internal/database/testutil"
	"github.com/hearthly/hearth/internal/middleware"
	"github.com/hearthly/hearth/internal/realtime"
	"github.com/hearthly/hearth/pkg/response"
)

// Env encapsulates a fully-wired household API backed by an in-memory database for handler tests.
type Env struct {
	T         *testing.T
	DB        *gorm.DB
	Router    *gin.Engine
	JWT       *iauth.JWTService
	Hub       *realtime.Hub
	Config    *app.Config
	Household string
}

// EnvOption customises NewEnv.
type EnvOption func(*app.Config)

// WithRealtime enables the /ws change feed.
func WithRealtime() EnvOption {
	return func(cfg *app.Config) { cfg.Realtime.Enabled = true }
}

// NewEnv provisions a fresh handler test environment with migrations and seed data applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData())
	household, err := database.EnsureHouseholdID(context.Background(), db)
	require.NoError(t, err)

	cfg := &app.Config{
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	hub := realtime.NewHub()
	router, err := api.NewRouter(db, jwtSvc, cfg, household, hub, middleware.NewMemoryRateStore())
	require.NoError(t, err)

	return &Env{
		T:         t,
		DB:        db,
		Router:    router,
		JWT:       jwtSvc,
		Hub:       hub,
		Config:    cfg,
		Household: household,
	}
}

// Token issues a bearer token for this household with the given role.
func (e *Env) Token(role string) string {
	e.T.Helper()
	token, err := e.JWT.GenerateToken(iauth.TokenInput{Household: e.Household, Role: role})
	require.NoError(e.T, err)
	return token
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// Data performs a request, requires the expected status and decodes the data payload into dest.
func Data[T any](e *Env, method, path string, body any, token string, status int) T {
	e.T.Helper()
	w := e.Request(method, path, body, token)
	require.Equal(e.T, status, w.Code, w.Body.String())

	var out T
	DecodeInto(e.T, DecodeResponse(e.T, w).Data, &out)
	return out
}

// WithMonitoring enables the health and prometheus endpoints. The caller installs the module.
func WithMonitoring() EnvOption {
	return func(cfg *app.Config) {
		cfg.Monitoring.Health.Enabled = true
		cfg.Monitoring.Prometheus.Enabled = true
	}
}
