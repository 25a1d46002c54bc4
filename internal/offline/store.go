package offline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hearthly/hearth/internal/monitoring"
	apperrors "github.com/hearthly/hearth/pkg/errors"
	"github.com/hearthly/hearth/pkg/logger"
)

// quotaSoftLimit is the share of the budget beyond which the store reports itself unavailable.
const quotaSoftLimit = 0.9

// Quota reports storage consumption. Without introspection Supported is false
// and Available is true.
type Quota struct {
	Usage       int64   `json:"usage"`
	Quota       int64   `json:"quota"`
	PercentUsed float64 `json:"percent_used"`
	Available   bool    `json:"available"`
	Supported   bool    `json:"supported"`
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source used for cache stamps and staleness.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger overrides the module logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// WithInitTimeout bounds how long Init waits for the backend to open. Zero waits indefinitely.
func WithInitTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		s.initTimeout = timeout
	}
}

// Store is the durable cache of entity collections used when the household server
// is unreachable. A store whose backend is unavailable keeps working as a no-op cache.
type Store struct {
	opener      Opener
	now         func() time.Time
	log         *zap.Logger
	initTimeout time.Duration

	group   singleflight.Group
	mu      sync.RWMutex
	backend Backend
	noCache bool

	locks *xsync.MapOf[string, *sync.Mutex]
}

// NewStore constructs a store that opens its backend lazily through opener.
func NewStore(opener Opener, opts ...Option) *Store {
	s := &Store{
		opener: opener,
		now:    time.Now,
		log:    logger.WithModule("offline"),
		locks:  xsync.NewMapOf[string, *sync.Mutex](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init opens the backend once. Concurrent callers share the in-flight attempt.
// ErrStorageUnavailable is reported to the first caller only; the store then
// stays in memory-only mode and later calls succeed.
func (s *Store) Init(ctx context.Context) error {
	s.mu.RLock()
	ready := s.backend != nil || s.noCache
	s.mu.RUnlock()
	if ready {
		return nil
	}

	_, err, _ := s.group.Do("init", func() (any, error) {
		s.mu.RLock()
		ready := s.backend != nil || s.noCache
		s.mu.RUnlock()
		if ready {
			return nil, nil
		}
		return nil, s.open(ctx)
	})
	return err
}

func (s *Store) open(ctx context.Context) error {
	if s.opener == nil {
		s.disable(apperrors.ErrStorageUnavailable)
		return apperrors.ErrStorageUnavailable
	}

	openCtx := ctx
	if s.initTimeout > 0 {
		var cancel context.CancelFunc
		openCtx, cancel = context.WithTimeout(ctx, s.initTimeout)
		defer cancel()
	}

	backend, err := s.opener(openCtx)
	if err != nil {
		if errors.Is(err, apperrors.ErrStorageUnavailable) {
			s.disable(err)
			return err
		}
		s.log.Error("open offline storage", zap.Error(err))
		return fmt.Errorf("offline: open backend: %w", err)
	}

	s.mu.Lock()
	s.backend = backend
	s.mu.Unlock()
	s.log.Debug("offline storage ready")
	return nil
}

func (s *Store) disable(cause error) {
	s.mu.Lock()
	s.noCache = true
	s.mu.Unlock()
	s.log.Warn("persistent storage unavailable, caching disabled", zap.Error(cause))
}

// Persistent reports whether a backend is open.
func (s *Store) Persistent() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend != nil
}

// backendFor returns the open backend, or nil in memory-only mode.
func (s *Store) backendFor(ctx context.Context) (Backend, error) {
	if err := s.Init(ctx); err != nil && !errors.Is(err, apperrors.ErrStorageUnavailable) {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend, nil
}

func (s *Store) entityLock(entity string) *sync.Mutex {
	lock, _ := s.locks.LoadOrCompute(entity, func() *sync.Mutex { return &sync.Mutex{} })
	return lock
}

// CacheCollection replaces the cached collection of entity with records. When the
// budget is short, older collections of other entities are evicted first; a write
// rejected for quota triggers one more eviction pass and exactly one retry.
func (s *Store) CacheCollection(ctx context.Context, entity string, records []Record) error {
	if entity == "" {
		return apperrors.NewBadRequest("offline: entity is required")
	}
	if err := validateRecords(records); err != nil {
		return err
	}

	backend, err := s.backendFor(ctx)
	if err != nil {
		return err
	}
	if backend == nil {
		monitoring.RecordCacheWrite(entity, "skipped")
		return nil
	}

	lock := s.entityLock(entity)
	lock.Lock()
	defer lock.Unlock()

	estimate := collectionSize(records) + metaSize(CachedAtKey(entity), strconv.FormatInt(s.now().UnixMilli(), 10))
	if err := s.makeRoom(ctx, backend, entity, estimate); err != nil {
		s.log.Warn("pre-write eviction failed", zap.String("entity", entity), zap.Error(err))
	}

	err = backend.ReplaceCollection(ctx, entity, records, s.now())
	if errors.Is(err, apperrors.ErrQuotaExceeded) {
		s.log.Warn("offline quota exceeded, evicting and retrying",
			zap.String("entity", entity),
			zap.Int64("estimate", estimate),
		)
		if _, evictErr := s.evict(ctx, backend, estimate, entity); evictErr != nil {
			s.log.Warn("eviction failed", zap.String("entity", entity), zap.Error(evictErr))
		}
		err = backend.ReplaceCollection(ctx, entity, records, s.now())
	}

	switch {
	case err == nil:
		monitoring.RecordCacheWrite(entity, "ok")
		s.publishUsage(ctx, backend)
		return nil
	case errors.Is(err, apperrors.ErrQuotaExceeded):
		monitoring.RecordCacheWrite(entity, "quota_exceeded")
		return apperrors.ErrQuotaExceeded.WithMessage(fmt.Sprintf("Offline storage quota exceeded caching %s", entity))
	default:
		monitoring.RecordCacheWrite(entity, "error")
		return fmt.Errorf("offline: cache %s: %w", entity, err)
	}
}

// makeRoom evicts other collections when the pre-write check shows too little free space.
func (s *Store) makeRoom(ctx context.Context, backend Backend, entity string, estimate int64) error {
	usage, err := backend.Usage(ctx)
	if err != nil || !usage.Supported || usage.Quota <= 0 {
		return err
	}

	infos, err := backend.Collections(ctx)
	if err != nil {
		return err
	}
	free := usage.Quota - usage.Used
	for _, info := range infos {
		if info.Entity == entity {
			free += info.Bytes + metaSize(CachedAtKey(entity), strconv.FormatInt(info.CachedAt.UnixMilli(), 10))
		}
	}
	if free >= estimate {
		return nil
	}

	_, err = s.evict(ctx, backend, estimate-free, entity)
	return err
}

// GetCachedCollection returns the cached records of entity, or an empty slice.
func (s *Store) GetCachedCollection(ctx context.Context, entity string) ([]Record, error) {
	backend, err := s.backendFor(ctx)
	if err != nil || backend == nil {
		return []Record{}, err
	}
	records, err := backend.Collection(ctx, entity)
	if err != nil {
		return []Record{}, fmt.Errorf("offline: read %s: %w", entity, err)
	}
	return records, nil
}

// GetLastCacheTime returns when entity was last cached, or the zero time.
func (s *Store) GetLastCacheTime(ctx context.Context, entity string) (time.Time, error) {
	backend, err := s.backendFor(ctx)
	if err != nil || backend == nil {
		return time.Time{}, err
	}
	value, ok, err := backend.GetMeta(ctx, CachedAtKey(entity))
	if err != nil || !ok {
		return time.Time{}, err
	}
	return parseMillis(value), nil
}

// IsStale reports whether entity was never cached or was cached more than maxAge ago.
func (s *Store) IsStale(ctx context.Context, entity string, maxAge time.Duration) (bool, error) {
	last, err := s.GetLastCacheTime(ctx, entity)
	if err != nil {
		return true, err
	}
	if last.IsZero() {
		return true, nil
	}
	return s.now().Sub(last) > maxAge, nil
}

// GetStorageQuota reports usage against the budget.
func (s *Store) GetStorageQuota(ctx context.Context) (Quota, error) {
	backend, err := s.backendFor(ctx)
	if err != nil || backend == nil {
		return Quota{Available: true}, err
	}
	usage, err := backend.Usage(ctx)
	if err != nil {
		return Quota{Available: true}, fmt.Errorf("offline: usage: %w", err)
	}
	return quotaFromUsage(usage), nil
}

func quotaFromUsage(usage Usage) Quota {
	if !usage.Supported || usage.Quota <= 0 {
		return Quota{Available: true}
	}
	return Quota{
		Usage:       usage.Used,
		Quota:       usage.Quota,
		PercentUsed: float64(usage.Used) / float64(usage.Quota) * 100,
		Available:   float64(usage.Used) < float64(usage.Quota)*quotaSoftLimit,
		Supported:   true,
	}
}

// EvictOldest clears whole collections, least recently cached first, until at
// least targetBytes were freed. It returns the number of collections evicted.
func (s *Store) EvictOldest(ctx context.Context, targetBytes int64) (int, error) {
	backend, err := s.backendFor(ctx)
	if err != nil || backend == nil {
		return 0, err
	}
	return s.evict(ctx, backend, targetBytes, "")
}

func (s *Store) evict(ctx context.Context, backend Backend, targetBytes int64, keep string) (int, error) {
	infos, err := backend.Collections(ctx)
	if err != nil {
		return 0, fmt.Errorf("offline: list collections: %w", err)
	}
	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].CachedAt.Before(infos[j].CachedAt)
	})

	var (
		freed   int64
		evicted int
	)
	for _, info := range infos {
		if freed >= targetBytes {
			break
		}
		if info.Entity == keep {
			continue
		}

		// a collection being written right now is the freshest one; leave it
		lock := s.entityLock(info.Entity)
		if !lock.TryLock() {
			continue
		}
		released, err := s.evictOne(ctx, backend, info.Entity)
		lock.Unlock()
		if err != nil {
			return evicted, err
		}

		freed += released
		evicted++
		monitoring.RecordCacheEviction(info.Entity, released)
		s.log.Info("evicted offline collection",
			zap.String("entity", info.Entity),
			zap.Time("cached_at", info.CachedAt),
			zap.Int64("freed_bytes", released),
		)
	}

	s.publishUsage(ctx, backend)
	return evicted, nil
}

// evictOne measures freed space through usage before and after when available.
func (s *Store) evictOne(ctx context.Context, backend Backend, entity string) (int64, error) {
	before, err := backend.Usage(ctx)
	if err != nil {
		return 0, err
	}
	released, err := backend.DeleteCollection(ctx, entity)
	if err != nil {
		return 0, fmt.Errorf("offline: evict %s: %w", entity, err)
	}
	if !before.Supported {
		return released, nil
	}
	after, err := backend.Usage(ctx)
	if err != nil {
		return released, nil
	}
	return before.Used - after.Used, nil
}

// RequestPersistence asks the backend for durable storage and records the answer.
// Failures are logged and reported as not persisted.
func (s *Store) RequestPersistence(ctx context.Context) bool {
	backend, err := s.backendFor(ctx)
	if err != nil || backend == nil {
		return false
	}

	granted, err := backend.RequestPersistence(ctx)
	if err != nil {
		s.log.Warn("request persistent storage", zap.Error(err))
		granted = false
	}
	if err := backend.PutMeta(ctx, MetaStoragePersisted, strconv.FormatBool(granted)); err != nil {
		s.log.Warn("record persistence grant", zap.Error(err))
	}
	return granted
}

// IsPersisted reports the last recorded persistence grant.
func (s *Store) IsPersisted(ctx context.Context) bool {
	backend, err := s.backendFor(ctx)
	if err != nil || backend == nil {
		return false
	}
	value, ok, err := backend.GetMeta(ctx, MetaStoragePersisted)
	return err == nil && ok && value == "true"
}

// ClearAll removes every cached collection and all metadata.
func (s *Store) ClearAll(ctx context.Context) error {
	backend, err := s.backendFor(ctx)
	if err != nil || backend == nil {
		return err
	}
	if err := backend.Clear(ctx); err != nil {
		return fmt.Errorf("offline: clear: %w", err)
	}
	s.publishUsage(ctx, backend)
	return nil
}

// CachedEntities lists cached collections ordered by entity name.
func (s *Store) CachedEntities(ctx context.Context) ([]CollectionInfo, error) {
	backend, err := s.backendFor(ctx)
	if err != nil || backend == nil {
		return []CollectionInfo{}, err
	}
	infos, err := backend.Collections(ctx)
	if err != nil {
		return []CollectionInfo{}, fmt.Errorf("offline: list collections: %w", err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Entity < infos[j].Entity })
	return infos, nil
}

// Close releases the backend.
func (s *Store) Close() error {
	s.mu.Lock()
	backend := s.backend
	s.backend = nil
	s.mu.Unlock()
	if backend == nil {
		return nil
	}
	return backend.Close()
}

func (s *Store) publishUsage(ctx context.Context, backend Backend) {
	usage, err := backend.Usage(ctx)
	if err != nil || !usage.Supported {
		return
	}
	monitoring.SetCacheUsage(usage.Used, usage.Quota)
}

func validateRecords(records []Record) error {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r.ID == "" {
			return apperrors.NewBadRequest("offline: record id is required")
		}
		if _, dup := seen[r.ID]; dup {
			return apperrors.NewBadRequest(fmt.Sprintf("offline: duplicate record id %q", r.ID))
		}
		seen[r.ID] = struct{}{}
	}
	return nil
}
