package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/hearthly/hearth/internal/app"
	"github.com/hearthly/hearth/internal/app/maintenance"
	"github.com/hearthly/hearth/internal/connectivity"
	"github.com/hearthly/hearth/internal/database"
	"github.com/hearthly/hearth/internal/models"
	"github.com/hearthly/hearth/internal/monitoring"
	"github.com/hearthly/hearth/internal/monitoring/checks"
	"github.com/hearthly/hearth/internal/offline"
	"github.com/hearthly/hearth/internal/remote"
	"github.com/hearthly/hearth/internal/stores"
	"github.com/hearthly/hearth/internal/syncqueue"
	apperrors "github.com/hearthly/hearth/pkg/errors"
	"github.com/hearthly/hearth/pkg/logger"
)

// API is the household server as seen by the runtime.
type API interface {
	syncqueue.RemoteAPI
	connectivity.Prober
}

type loader interface {
	Load(ctx context.Context) (stores.LoadResult, error)
}

// Option customises a Runtime.
type Option func(*options)

type options struct {
	api   API
	db    *gorm.DB
	clock func() time.Time
}

// WithAPI replaces the HTTP client built from configuration.
func WithAPI(api API) Option {
	return func(o *options) { o.api = api }
}

// WithDatabase uses db for the cache and queue instead of opening offline.path.
func WithDatabase(db *gorm.DB) Option {
	return func(o *options) { o.db = db }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// Runtime owns the single offline store, mutation queue and connectivity monitor
// of the process and wires them into the domain stores.
type Runtime struct {
	Cache    *offline.Store
	Queue    *syncqueue.Queue
	Network  *connectivity.Monitor
	Chores   *stores.ChoreStore
	Family   *stores.FamilyStore
	Shopping *stores.ShoppingStore
	Health   *monitoring.HealthManager

	cfg        *app.Config
	db         *gorm.DB
	ownsDB     bool
	api        API
	feed       *remote.Feed
	trigger    *syncqueue.Trigger
	scheduler  *maintenance.Scheduler
	loaders    map[string]loader
	dirty      *xsync.MapOf[string, struct{}]
	staleAfter time.Duration
	log        *zap.Logger

	cancel   context.CancelFunc
	feedDone chan struct{}
	detach   func()
}

// New builds a runtime from configuration. Nothing touches the network until Open.
func New(ctx context.Context, cfg *app.Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("client: config is required")
	}
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	log := logger.WithModule("client")
	r := &Runtime{
		cfg:        cfg,
		api:        o.api,
		dirty:      xsync.NewMapOf[string, struct{}](),
		staleAfter: cfg.Offline.StaleAfter,
		log:        log,
	}

	if r.api == nil {
		httpClient, err := remote.New(remote.Config{
			BaseURL: cfg.Remote.BaseURL,
			Token:   cfg.Remote.Token,
			Timeout: cfg.Remote.Timeout,
		})
		if err != nil {
			return nil, err
		}
		r.api = httpClient
		if cfg.Realtime.Enabled {
			r.feed = httpClient.Feed(models.EntityChores, models.EntityFamily, models.EntityShopping)
		}
	}

	cacheDB := o.db
	r.db = o.db
	if r.db == nil {
		var err error
		if cacheDB, r.db, err = openLocal(cfg.Offline.Path, log); err != nil {
			return nil, err
		}
		r.ownsDB = true
	}

	r.Cache = offline.NewStore(
		offline.DatabaseOpener(cacheDB, cfg.Offline.QuotaBytes),
		offline.WithClock(o.clock),
		offline.WithInitTimeout(cfg.Offline.InitTimeout),
	)
	r.Network = connectivity.NewMonitor(r.api, false)

	resolver, err := syncqueue.ResolverByName(cfg.Sync.Resolver)
	if err != nil {
		return nil, multierr.Append(err, r.closeDB())
	}
	r.Queue = syncqueue.New(r.db,
		syncqueue.NewRemoteApplier(r.api, syncqueue.WithResolver(resolver)),
		syncqueue.WithConnectivity(r.Network),
		syncqueue.WithClock(o.clock),
		syncqueue.WithMaxRetries(cfg.Sync.MaxRetries),
		syncqueue.WithBackoff(cfg.Sync.BaseDelay, cfg.Sync.MaxDelay),
		syncqueue.WithRequestTimeout(cfg.Sync.RequestTimeout),
	)

	deps := stores.Deps{
		Cache:   r.Cache,
		Queue:   r.Queue,
		Network: r.Network,
		API:     r.api,
		Clock:   o.clock,
	}
	r.Chores = stores.NewChoreStore(deps)
	r.Family = stores.NewFamilyStore(deps)
	r.Shopping = stores.NewShoppingStore(deps)
	r.loaders = map[string]loader{
		models.EntityChores:   r.Chores,
		models.EntityFamily:   r.Family,
		models.EntityShopping: r.Shopping,
	}

	r.scheduler = maintenance.NewScheduler(r.Queue, r.Network, r,
		maintenance.WithNow(o.clock),
		maintenance.WithDrainSchedule(cfg.Sync.DrainSchedule),
		maintenance.WithProbeSchedule(cfg.Sync.ProbeSchedule),
		maintenance.WithRefreshSchedule(cfg.Sync.RefreshSchedule),
	)

	r.Health = monitoring.NewHealthManager()
	if module := monitoring.CurrentModule(); module != nil {
		r.Health = module.Health()
	}
	r.Health.RegisterReadiness(checks.Offline(offlineInspector{r.Cache}))
	r.Health.RegisterReadiness(checks.Queue(r.Queue))
	r.Health.RegisterLiveness(checks.Maintenance(0))

	return r, nil
}

// openLocal opens the sqlite file backing cache and queue. When the file cannot be
// used, the queue falls back to an in-memory database and the cache is disabled.
func openLocal(path string, log *zap.Logger) (cache, queue *gorm.DB, err error) {
	db, err := database.Open(database.Config{Driver: "sqlite", Path: path})
	if err == nil {
		if err = database.MigrateOffline(db); err == nil {
			return db, db, nil
		}
		_ = database.Close(db)
	}
	log.Warn("offline database unavailable, changes will not survive a restart",
		zap.String("path", path), zap.Error(err))

	mem, memErr := database.Open(database.Config{Driver: "sqlite"})
	if memErr != nil {
		return nil, nil, fmt.Errorf("client: open fallback database: %w", memErr)
	}
	if memErr = database.MigrateOffline(mem); memErr != nil {
		_ = database.Close(mem)
		return nil, nil, fmt.Errorf("client: migrate fallback database: %w", memErr)
	}
	return nil, mem, nil
}

// Open initialises persistence, recovers entries interrupted mid-sync and probes
// the server once.
func (r *Runtime) Open(ctx context.Context) error {
	if err := r.Cache.Init(ctx); err != nil && !errors.Is(err, apperrors.ErrStorageUnavailable) {
		return err
	}
	if r.Cache.Persistent() && !r.Cache.IsPersisted(ctx) {
		r.Cache.RequestPersistence(ctx)
	}
	if n, err := r.Queue.RecoverInFlight(ctx); err != nil {
		return err
	} else if n > 0 {
		r.log.Info("recovered interrupted queue entries", zap.Int64("entries", n))
	}
	r.Network.Probe(ctx)
	return nil
}

// Start launches the background machinery: replay on reconnect, cron safety nets
// and the realtime change feed. Close stops it.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.trigger = syncqueue.NewTrigger(ctx, r.Queue)
	r.detach = r.trigger.Attach(r.Network)

	if err := r.scheduler.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("client: start scheduler: %w", err)
	}

	if r.feed != nil {
		r.feedDone = make(chan struct{})
		go r.listen(ctx)
	}

	if r.Network.Online() {
		r.trigger.Fire()
	}
	return nil
}

func (r *Runtime) listen(ctx context.Context) {
	defer close(r.feedDone)
	attempt := 0
	for {
		err := r.feed.Run(ctx, r.onChange)
		if ctx.Err() != nil {
			return
		}
		r.log.Debug("change feed disconnected", zap.Error(err))
		delay := r.Queue.Backoff(attempt)
		attempt++
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (r *Runtime) onChange(event remote.ChangeEvent) {
	if _, ok := r.loaders[event.Stream]; !ok {
		return
	}
	r.dirty.Store(event.Stream, struct{}{})
	if _, err := r.RefreshStale(context.Background()); err != nil {
		r.log.Debug("refresh after change failed", zap.String("stream", event.Stream), zap.Error(err))
	}
}

// Pull loads every collection, from the server when online and the cache otherwise.
func (r *Runtime) Pull(ctx context.Context) (map[string]stores.LoadResult, error) {
	out := make(map[string]stores.LoadResult, len(r.loaders))
	var errs error
	for entity, l := range r.loaders {
		res, err := l.Load(ctx)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", entity, err))
			continue
		}
		out[entity] = res
		r.dirty.Delete(entity)
	}
	return out, errs
}

// RefreshStale reloads collections that the change feed marked or whose cache is
// older than offline.stale_after. It does nothing while offline.
func (r *Runtime) RefreshStale(ctx context.Context) (int, error) {
	if !r.Network.Online() {
		return 0, nil
	}
	refreshed := 0
	var errs error
	for entity, l := range r.loaders {
		_, marked := r.dirty.Load(entity)
		if !marked {
			stale, err := r.Cache.IsStale(ctx, entity, r.staleAfter)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			if !stale {
				continue
			}
		}
		res, err := l.Load(ctx)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("refresh %s: %w", entity, err))
			continue
		}
		if !res.FromCache {
			r.dirty.Delete(entity)
			refreshed++
		}
	}
	return refreshed, errs
}

// Sync drains the queue once. Force attempts delivery even when the last known
// state is offline.
func (r *Runtime) Sync(ctx context.Context, force bool) (syncqueue.Result, error) {
	if !force {
		r.Network.Probe(ctx)
	}
	return r.Queue.Process(ctx, syncqueue.ProcessOptions{Force: force})
}

// Clear drops all cached collections and every queued change.
func (r *Runtime) Clear(ctx context.Context) error {
	return multierr.Combine(r.Queue.Clear(ctx), r.Cache.ClearAll(ctx))
}

// Status summarises connectivity, storage and queue state.
type Status struct {
	Online      bool                     `json:"online"`
	Persistent  bool                     `json:"persistent"`
	Persisted   bool                     `json:"persisted"`
	Quota       offline.Quota            `json:"quota"`
	Queue       syncqueue.Stats          `json:"queue"`
	Stalled     []syncqueue.Entry        `json:"stalled,omitempty"`
	Collections []offline.CollectionInfo `json:"collections"`
	Health      monitoring.HealthReport  `json:"health"`
}

// Status gathers a Status report.
func (r *Runtime) Status(ctx context.Context) (Status, error) {
	st := Status{
		Online:     r.Network.Online(),
		Persistent: r.Cache.Persistent(),
		Persisted:  r.Cache.IsPersisted(ctx),
	}
	var errs error
	var err error
	if st.Quota, err = r.Cache.GetStorageQuota(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}
	if st.Queue, err = r.Queue.Stats(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}
	if st.Stalled, err = r.Queue.Stalled(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}
	if st.Collections, err = r.Cache.CachedEntities(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}
	st.Health = monitoring.MergeReports(r.Health.EvaluateLiveness(ctx), r.Health.EvaluateReadiness(ctx))
	return st, errs
}

// Close stops background work and releases storage.
func (r *Runtime) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	<-r.scheduler.Stop().Done()
	if r.detach != nil {
		r.detach()
	}
	if r.trigger != nil {
		r.trigger.Wait()
	}
	if r.feedDone != nil {
		<-r.feedDone
	}
	r.Chores.Close()
	r.Family.Close()
	r.Shopping.Close()

	return multierr.Combine(r.Cache.Close(), r.closeDB())
}

func (r *Runtime) closeDB() error {
	if !r.ownsDB {
		return nil
	}
	return database.Close(r.db)
}

// offlineInspector adapts the offline store to the health check.
type offlineInspector struct{ store *offline.Store }

func (i offlineInspector) Persistent() bool { return i.store.Persistent() }

func (i offlineInspector) CheckQuota(ctx context.Context) (checks.OfflineQuota, error) {
	q, err := i.store.GetStorageQuota(ctx)
	if err != nil {
		return checks.OfflineQuota{}, err
	}
	return checks.OfflineQuota{Used: q.Usage, Quota: q.Quota, Available: q.Available, Supported: q.Supported}, nil
}
