package offline

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	apperrors "github.com/hearthly/hearth/pkg/errors"
)

// MemoryBackend keeps collections in process memory. It honours the same quota
// semantics as DatabaseBackend and never persists.
type MemoryBackend struct {
	mu          sync.Mutex
	quota       int64
	collections map[string][]Record
	meta        map[string]string
}

// NewMemoryBackend constructs an in-memory backend. A zero quota disables usage reporting.
func NewMemoryBackend(quotaBytes int64) *MemoryBackend {
	return &MemoryBackend{
		quota:       quotaBytes,
		collections: make(map[string][]Record),
		meta:        make(map[string]string),
	}
}

// MemoryOpener returns an Opener yielding backend.
func MemoryOpener(backend *MemoryBackend) Opener {
	return func(context.Context) (Backend, error) {
		if backend == nil {
			return nil, apperrors.ErrStorageUnavailable
		}
		return backend, nil
	}
}

func (b *MemoryBackend) ReplaceCollection(_ context.Context, entity string, records []Record, cachedAt time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := CachedAtKey(entity)
	stamp := strconv.FormatInt(cachedAt.UnixMilli(), 10)

	if b.quota > 0 {
		used := b.usedLocked()
		used -= collectionSize(b.collections[entity])
		if old, ok := b.meta[key]; ok {
			used -= metaSize(key, old)
		}
		used += collectionSize(records) + metaSize(key, stamp)
		if used > b.quota {
			return apperrors.ErrQuotaExceeded
		}
	}

	stored := make([]Record, len(records))
	for i, r := range records {
		stored[i] = Record{ID: r.ID, Data: append([]byte(nil), r.Data...)}
	}
	b.collections[entity] = stored
	b.meta[key] = stamp
	return nil
}

func (b *MemoryBackend) Collection(_ context.Context, entity string) ([]Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	stored := b.collections[entity]
	out := make([]Record, len(stored))
	for i, r := range stored {
		out[i] = Record{ID: r.ID, Data: append([]byte(nil), r.Data...)}
	}
	return out, nil
}

func (b *MemoryBackend) DeleteCollection(_ context.Context, entity string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	freed := collectionSize(b.collections[entity])
	key := CachedAtKey(entity)
	if stamp, ok := b.meta[key]; ok {
		freed += metaSize(key, stamp)
	}
	delete(b.collections, entity)
	delete(b.meta, key)
	return freed, nil
}

func (b *MemoryBackend) Collections(_ context.Context) ([]CollectionInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	infos := make([]CollectionInfo, 0, len(b.collections))
	for key, value := range b.meta {
		entity, ok := strings.CutSuffix(key, cachedAtSuffix)
		if !ok {
			continue
		}
		infos = append(infos, CollectionInfo{
			Entity:   entity,
			CachedAt: parseMillis(value),
			Bytes:    collectionSize(b.collections[entity]),
			Records:  len(b.collections[entity]),
		})
	}
	return infos, nil
}

func (b *MemoryBackend) GetMeta(_ context.Context, key string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	value, ok := b.meta[key]
	return value, ok, nil
}

func (b *MemoryBackend) PutMeta(_ context.Context, key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.meta[key] = value
	return nil
}

func (b *MemoryBackend) Usage(context.Context) (Usage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.quota <= 0 {
		return Usage{}, nil
	}
	return Usage{Used: b.usedLocked(), Quota: b.quota, Supported: true}, nil
}

// RequestPersistence always reports false: memory never survives the process.
func (b *MemoryBackend) RequestPersistence(context.Context) (bool, error) {
	return false, nil
}

func (b *MemoryBackend) Clear(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.collections = make(map[string][]Record)
	b.meta = make(map[string]string)
	return nil
}

func (b *MemoryBackend) Close() error {
	return nil
}

func (b *MemoryBackend) usedLocked() int64 {
	var used int64
	for _, records := range b.collections {
		used += collectionSize(records)
	}
	for key, value := range b.meta {
		used += metaSize(key, value)
	}
	return used
}

func collectionSize(records []Record) int64 {
	var size int64
	for _, r := range records {
		size += r.size()
	}
	return size
}

func parseMillis(value string) time.Time {
	ms, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
