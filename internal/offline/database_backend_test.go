package offline

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hearthly/hearth/internal/database/testutil"
	"github.com/hearthly/hearth/internal/models"
	apperrors "github.com/hearthly/hearth/pkg/errors"
)

func newDatabaseBackend(t *testing.T, quota int64) *DatabaseBackend {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithOfflineSchema())
	return NewDatabaseBackend(db, quota)
}

func TestDatabaseBackendReplaceCollection(t *testing.T) {
	ctx := context.Background()
	backend := newDatabaseBackend(t, 0)
	at := time.UnixMilli(1_700_000_000_000)

	require.NoError(t, backend.ReplaceCollection(ctx, "chores", records("a", 3, 20), at))
	require.NoError(t, backend.ReplaceCollection(ctx, "chores", []Record{
		{ID: "z", Data: json.RawMessage(`{"title":"bins"}`)},
		{ID: "y", Data: json.RawMessage(`{"title":"dishes"}`)},
	}, at.Add(time.Minute)))

	got, err := backend.Collection(ctx, "chores")
	require.NoError(t, err)
	require.Equal(t, []string{"z", "y"}, ids(got))
	require.JSONEq(t, `{"title":"bins"}`, string(got[0].Data))

	stamp, ok, err := backend.GetMeta(ctx, CachedAtKey("chores"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1700000060000", stamp)
}

func TestDatabaseBackendQuotaRollsBack(t *testing.T) {
	ctx := context.Background()
	backend := newDatabaseBackend(t, 300)
	at := time.UnixMilli(1_700_000_000_000)

	require.NoError(t, backend.ReplaceCollection(ctx, "chores", records("a", 2, 100), at))

	err := backend.ReplaceCollection(ctx, "chores", records("b", 4, 100), at.Add(time.Minute))
	require.ErrorIs(t, err, apperrors.ErrQuotaExceeded)

	got, err := backend.Collection(ctx, "chores")
	require.NoError(t, err)
	require.Equal(t, []string{"a-0", "a-1"}, ids(got))

	stamp, _, err := backend.GetMeta(ctx, CachedAtKey("chores"))
	require.NoError(t, err)
	require.Equal(t, "1700000000000", stamp)
}

func TestDatabaseBackendUsageAndCollections(t *testing.T) {
	ctx := context.Background()
	backend := newDatabaseBackend(t, 10_000)
	at := time.UnixMilli(1_700_000_000_000)

	require.NoError(t, backend.ReplaceCollection(ctx, "chores", records("a", 2, 100), at))
	require.NoError(t, backend.ReplaceCollection(ctx, "family", records("b", 1, 50), at.Add(time.Second)))

	usage, err := backend.Usage(ctx)
	require.NoError(t, err)
	require.True(t, usage.Supported)
	require.Equal(t, int64(250+29+29), usage.Used)

	infos, err := backend.Collections(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	byEntity := map[string]CollectionInfo{}
	for _, info := range infos {
		byEntity[info.Entity] = info
	}
	require.Equal(t, int64(200), byEntity["chores"].Bytes)
	require.Equal(t, 2, byEntity["chores"].Records)
	require.Equal(t, at.UnixMilli(), byEntity["chores"].CachedAt.UnixMilli())

	freed, err := backend.DeleteCollection(ctx, "chores")
	require.NoError(t, err)
	require.Equal(t, int64(229), freed)

	usage, err = backend.Usage(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(79), usage.Used)
}

func TestDatabaseBackendClearLeavesQueueAlone(t *testing.T) {
	ctx := context.Background()
	db := testutil.MustOpenTestDB(t, testutil.WithOfflineSchema())
	backend := NewDatabaseBackend(db, 0)

	require.NoError(t, db.Create(&models.QueueEntry{Type: "CREATE", Entity: "chores", EntityID: "local_1", Status: "pending", Timestamp: 1}).Error)
	require.NoError(t, backend.ReplaceCollection(ctx, "chores", records("a", 1, 20), time.Now()))
	require.NoError(t, backend.PutMeta(ctx, MetaStoragePersisted, "true"))

	require.NoError(t, backend.Clear(ctx))

	var cached, meta, queued int64
	require.NoError(t, db.Model(&models.CachedRecord{}).Count(&cached).Error)
	require.NoError(t, db.Model(&models.Metadata{}).Count(&meta).Error)
	require.NoError(t, db.Model(&models.QueueEntry{}).Count(&queued).Error)
	require.Zero(t, cached)
	require.Zero(t, meta)
	require.Equal(t, int64(1), queued)
}

func TestDatabaseBackendPersistenceDependsOnFile(t *testing.T) {
	ctx := context.Background()

	memory := newDatabaseBackend(t, 0)
	granted, err := memory.RequestPersistence(ctx)
	require.NoError(t, err)
	require.False(t, granted)

	store := NewStore(FileOpener(filepath.Join(t.TempDir(), "offline.sqlite"), 0))
	t.Cleanup(func() { _ = store.Close() })
	require.True(t, store.RequestPersistence(ctx))
	require.True(t, store.IsPersisted(ctx))
}

func TestDatabaseOpenerWithoutHandleIsUnavailable(t *testing.T) {
	store := NewStore(DatabaseOpener(nil, 0))
	require.ErrorIs(t, store.Init(context.Background()), apperrors.ErrStorageUnavailable)
	require.False(t, store.Persistent())
}

func TestStoreOverDatabaseEvictsOldest(t *testing.T) {
	ctx := context.Background()
	db := testutil.MustOpenTestDB(t)
	clock := newFakeClock()
	store := NewStore(DatabaseOpener(db, 1_000), WithClock(clock.Now))

	require.NoError(t, store.CacheCollection(ctx, "family", records("f", 1, 400)))
	clock.Advance(time.Minute)
	require.NoError(t, store.CacheCollection(ctx, "chores", records("c", 1, 400)))
	clock.Advance(time.Minute)
	require.NoError(t, store.CacheCollection(ctx, "shopping", records("s", 1, 400)))

	entities, err := store.CachedEntities(ctx)
	require.NoError(t, err)
	require.Len(t, entities, 2)
	require.Equal(t, "chores", entities[0].Entity)
	require.Equal(t, "shopping", entities[1].Entity)
}
