package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hearthly/hearth/internal/app"
	"github.com/hearthly/hearth/internal/database/testutil"
	"github.com/hearthly/hearth/internal/models"
	"github.com/hearthly/hearth/internal/stores"
	apperrors "github.com/hearthly/hearth/pkg/errors"
)

// fakeAPI answers like a household server that assigns ids on create.
type fakeAPI struct {
	reachable atomic.Bool
	mu        sync.Mutex
	next      int
	gets      map[string]int
}

func newFakeAPI(reachable bool) *fakeAPI {
	api := &fakeAPI{gets: map[string]int{}}
	api.reachable.Store(reachable)
	return api
}

func (f *fakeAPI) check() error {
	if !f.reachable.Load() {
		return apperrors.ErrRemoteUnavailable
	}
	return nil
}

func (f *fakeAPI) Ping(context.Context) error { return f.check() }

func (f *fakeAPI) Get(_ context.Context, path string) (json.RawMessage, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.gets[path]++
	f.mu.Unlock()
	return json.RawMessage("[]"), nil
}

func (f *fakeAPI) Post(_ context.Context, _ string, body any) (json.RawMessage, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.next++
	obj["id"] = fmt.Sprintf("srv-%d", f.next)
	f.mu.Unlock()
	return json.Marshal(obj)
}

func (f *fakeAPI) Put(context.Context, string, any) (json.RawMessage, error) {
	return nil, f.check()
}

func (f *fakeAPI) Delete(context.Context, string) (json.RawMessage, error) {
	return nil, f.check()
}

func (f *fakeAPI) getCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets[path]
}

func testConfig() *app.Config {
	return &app.Config{
		Offline: app.OfflineConfig{QuotaBytes: 1 << 20, StaleAfter: time.Minute},
		Sync:    app.SyncConfig{MaxRetries: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}
}

func newRuntime(t *testing.T, api *fakeAPI) *Runtime {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithOfflineSchema())
	r, err := New(context.Background(), testConfig(), WithAPI(api), WithDatabase(db))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, r.Close()) })
	require.NoError(t, r.Open(context.Background()))
	return r
}

func TestRuntimeOfflineThenSync(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI(false)
	r := newRuntime(t, api)
	require.False(t, r.Network.Online())

	chore, res, err := r.Chores.Create(ctx, stores.ChoreInput{Title: "Water plants"})
	require.NoError(t, err)
	require.True(t, res.Queued)

	status, err := r.Status(ctx)
	require.NoError(t, err)
	require.False(t, status.Online)
	require.Equal(t, 1, status.Queue.Pending)

	api.reachable.Store(true)
	result, err := r.Sync(ctx, false)
	require.NoError(t, err)
	require.Equal(t, 1, result.Success)
	require.True(t, r.Network.Online())

	_, ok := r.Chores.Get(chore.ID)
	require.False(t, ok)
	require.Len(t, r.Chores.List(), 1)
	require.Equal(t, "srv-1", r.Chores.List()[0].ID)
}

func TestRuntimeSyncWhileOfflineSkipsPass(t *testing.T) {
	ctx := context.Background()
	r := newRuntime(t, newFakeAPI(false))

	_, _, err := r.Shopping.Add(ctx, stores.ItemInput{Name: "Apples"})
	require.NoError(t, err)

	result, err := r.Sync(ctx, false)
	require.NoError(t, err)
	require.True(t, result.Offline)

	forced, err := r.Sync(ctx, true)
	require.NoError(t, err)
	require.Equal(t, 1, forced.Failed)
}

func TestRuntimeRefreshStaleLoadsUncachedCollections(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI(true)
	r := newRuntime(t, api)
	require.True(t, r.Network.Online())

	refreshed, err := r.RefreshStale(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, refreshed)

	refreshed, err = r.RefreshStale(ctx)
	require.NoError(t, err)
	require.Zero(t, refreshed, "fresh caches should not be reloaded")

	r.dirty.Store(models.EntityShopping, struct{}{})
	refreshed, err = r.RefreshStale(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, refreshed)
	require.Equal(t, 2, api.getCount("/api/shopping"))
}

func TestRuntimePullFallsBackToCache(t *testing.T) {
	ctx := context.Background()
	r := newRuntime(t, newFakeAPI(false))

	results, err := r.Pull(ctx)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for entity, res := range results {
		require.True(t, res.FromCache, entity)
	}
}

func TestRuntimeClear(t *testing.T) {
	ctx := context.Background()
	r := newRuntime(t, newFakeAPI(false))

	_, _, err := r.Family.Add(ctx, stores.MemberInput{Name: "Jo"})
	require.NoError(t, err)

	require.NoError(t, r.Clear(ctx))
	status, err := r.Status(ctx)
	require.NoError(t, err)
	require.Zero(t, status.Queue.Pending)
	require.Empty(t, status.Collections)
}

func TestRuntimeRejectsUnknownResolver(t *testing.T) {
	cfg := testConfig()
	cfg.Sync.Resolver = "coin_flip"
	db := testutil.MustOpenTestDB(t, testutil.WithOfflineSchema())

	_, err := New(context.Background(), cfg, WithAPI(newFakeAPI(true)), WithDatabase(db))
	require.Error(t, err)
}

func TestRuntimeStartAndClose(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithOfflineSchema())
	cfg := testConfig()
	cfg.Sync.DrainSchedule = "@every 1h"
	cfg.Sync.ProbeSchedule = "@every 1h"
	cfg.Sync.RefreshSchedule = "@every 1h"

	r, err := New(context.Background(), cfg, WithAPI(newFakeAPI(true)), WithDatabase(db))
	require.NoError(t, err)
	require.NoError(t, r.Open(context.Background()))
	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Close())
}
