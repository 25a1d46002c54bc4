package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hearthly/hearth/internal/app"
	iauth "github.com/hearthly/hearth/internal/auth"
	"github.com/hearthly/hearth/internal/client"
	dbtestutil "github.com/hearthly/hearth/internal/database/testutil"
	"github.com/hearthly/hearth/internal/handlers/testutil"
	"github.com/hearthly/hearth/internal/models"
	"github.com/hearthly/hearth/internal/monitoring"
	"github.com/hearthly/hearth/internal/realtime"
	"github.com/hearthly/hearth/internal/remote"
	"github.com/hearthly/hearth/internal/stores"
	"github.com/hearthly/hearth/internal/syncqueue"
)

func installModule(t *testing.T) {
	t.Helper()
	mod, err := monitoring.NewModule(monitoring.Options{DisableGoCollector: true, DisableProcessCollector: true})
	require.NoError(t, err)
	monitoring.SetModule(mod)
	t.Cleanup(func() { monitoring.SetModule(nil) })
}

func TestStaticHealthWhenMonitoringDisabled(t *testing.T) {
	env := testutil.NewEnv(t)

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		status := testutil.Data[map[string]string](env, http.MethodGet, path, nil, "", http.StatusOK)
		require.Equal(t, "ok", status["status"], path)
		require.Equal(t, env.Household, status["household"], path)
	}

	w := env.Request(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthAndMetricsWithMonitoring(t *testing.T) {
	installModule(t)
	env := testutil.NewEnv(t, testutil.WithMonitoring())

	w := env.Request(http.MethodGet, "/health/live", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), `"success":true`)

	w = env.Request(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), env.Household)

	w = env.Request(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "hearth_api_latency_seconds")

	child := env.Token(iauth.RoleChild)
	w = env.Request(http.MethodGet, "/api/monitoring/summary", nil, child)
	require.Equal(t, http.StatusForbidden, w.Code)

	summary := testutil.Data[map[string]any](env, http.MethodGet, "/api/monitoring/summary", nil, env.Token(iauth.RoleParent), http.StatusOK)
	require.Contains(t, summary, "summary")
}

func TestUnknownRouteReturnsEnvelope(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/api/pets", nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	resp := testutil.DecodeResponse(t, w)
	require.False(t, resp.Success)
	require.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestRealtimeRouteRequiresFeature(t *testing.T) {
	env := testutil.NewEnv(t)
	w := env.Request(http.MethodGet, "/ws", nil, env.Token(iauth.RoleDevice))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRealtimeFeedDeliversChanges(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithRealtime())
	srv := httptest.NewServer(env.Router)
	t.Cleanup(srv.Close)

	token := env.Token(iauth.RoleDevice)
	rc, err := remote.New(remote.Config{BaseURL: srv.URL, Token: token, Timeout: 2 * time.Second})
	require.NoError(t, err)

	events := make(chan remote.ChangeEvent, 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- rc.Feed(realtime.StreamChores).Run(ctx, func(e remote.ChangeEvent) {
			select {
			case events <- e:
			default:
			}
		})
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	var got remote.ChangeEvent
	require.Eventually(t, func() bool {
		env.Request(http.MethodPost, "/api/chores", map[string]any{"title": "Dishes"}, token)
		select {
		case got = <-events:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	require.Equal(t, realtime.StreamChores, got.Stream)
	require.Equal(t, "created", got.Event)
	require.Contains(t, string(got.Data), "Dishes")
}

func TestOfflineClientSyncsAgainstServer(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)

	var online atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !online.Load() {
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
			return
		}
		env.Router.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	rc, err := remote.New(remote.Config{BaseURL: srv.URL, Token: env.Token(iauth.RoleDevice), Timeout: 2 * time.Second})
	require.NoError(t, err)

	cfg := &app.Config{
		Offline: app.OfflineConfig{QuotaBytes: 1 << 20, StaleAfter: time.Minute},
		Sync:    app.SyncConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}
	rt, err := client.New(ctx, cfg,
		client.WithAPI(rc),
		client.WithDatabase(dbtestutil.MustOpenTestDB(t, dbtestutil.WithOfflineSchema())),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, rt.Close()) })
	require.NoError(t, rt.Open(ctx))
	require.False(t, rt.Network.Online())

	chore, res, err := rt.Chores.Create(ctx, stores.ChoreInput{Title: "Feed the cat", Points: 2})
	require.NoError(t, err)
	require.True(t, res.Queued)
	require.True(t, syncqueue.IsLocalID(chore.ID))

	_, err = rt.Chores.ToggleComplete(ctx, chore.ID)
	require.NoError(t, err)
	_, _, err = rt.Shopping.Add(ctx, stores.ItemInput{Name: "Oat milk", Quantity: 2})
	require.NoError(t, err)

	online.Store(true)
	result, err := rt.Sync(ctx, false)
	require.NoError(t, err)
	require.False(t, result.Offline)
	require.Zero(t, result.Failed)
	require.True(t, rt.Network.Online())

	token := env.Token(iauth.RoleDevice)
	serverChores := testutil.Data[[]models.Chore](env, http.MethodGet, "/api/chores", nil, token, http.StatusOK)
	require.Len(t, serverChores, 1)
	require.Equal(t, "Feed the cat", serverChores[0].Title)
	require.True(t, serverChores[0].Completed)
	require.False(t, syncqueue.IsLocalID(serverChores[0].ID))

	items := testutil.Data[[]models.ShoppingItem](env, http.MethodGet, "/api/shopping", nil, token, http.StatusOK)
	require.Len(t, items, 1)
	require.Equal(t, 2, items[0].Quantity)

	local := rt.Chores.List()
	require.Len(t, local, 1)
	require.Equal(t, serverChores[0].ID, local[0].ID)

	status, err := rt.Status(ctx)
	require.NoError(t, err)
	require.Zero(t, status.Queue.Pending)
}
