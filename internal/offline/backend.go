package offline

import (
	"context"
	"encoding/json"
	"time"
)

const (
	cachedAtSuffix = "_cached_at"

	// MetaStoragePersisted records whether durable storage was granted.
	MetaStoragePersisted = "storage_persisted"
)

// CachedAtKey names the metadata entry holding an entity collection's cache time.
func CachedAtKey(entity string) string {
	return entity + cachedAtSuffix
}

// Record is a plain snapshot of one entity as stored in the offline cache.
type Record struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

func (r Record) size() int64 {
	return int64(len(r.Data))
}

// Usage describes how much of the backend's budget is consumed.
type Usage struct {
	Used      int64
	Quota     int64
	Supported bool
}

// CollectionInfo summarises one cached entity collection.
type CollectionInfo struct {
	Entity   string    `json:"entity"`
	CachedAt time.Time `json:"cached_at"`
	Bytes    int64     `json:"bytes"`
	Records  int       `json:"records"`
}

// Backend is the persistence capability behind Store.
type Backend interface {
	// ReplaceCollection atomically swaps every record of entity for records and stamps
	// the cache time. It fails with ErrQuotaExceeded, leaving prior data intact, when
	// the result would not fit the budget.
	ReplaceCollection(ctx context.Context, entity string, records []Record, cachedAt time.Time) error
	Collection(ctx context.Context, entity string) ([]Record, error)
	// DeleteCollection removes the records and cache stamp of entity and reports the bytes released.
	DeleteCollection(ctx context.Context, entity string) (int64, error)
	Collections(ctx context.Context) ([]CollectionInfo, error)

	GetMeta(ctx context.Context, key string) (string, bool, error)
	PutMeta(ctx context.Context, key, value string) error

	Usage(ctx context.Context) (Usage, error)
	RequestPersistence(ctx context.Context) (bool, error)
	Clear(ctx context.Context) error
	Close() error
}

// Opener produces the backend during Store.Init. Returning ErrStorageUnavailable
// switches the store to memory-only mode.
type Opener func(ctx context.Context) (Backend, error)

func metaSize(key, value string) int64 {
	return int64(len(key) + len(value))
}
