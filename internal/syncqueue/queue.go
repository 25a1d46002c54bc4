package syncqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/hearthly/hearth/internal/models"
	"github.com/hearthly/hearth/internal/monitoring"
	apperrors "github.com/hearthly/hearth/pkg/errors"
	"github.com/hearthly/hearth/pkg/logger"
)

const (
	DefaultMaxRetries = 5
	DefaultBaseDelay  = time.Second
	DefaultMaxDelay   = 30 * time.Second
)

// Connectivity is the online signal consulted before each pass.
type Connectivity interface {
	Online() bool
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Conflict describes a queued change that was based on an older server state.
type Conflict struct {
	EntryID         uint            `json:"entry_id"`
	Entity          string          `json:"entity"`
	EntityID        string          `json:"entity_id"`
	Local           json.RawMessage `json:"local,omitempty"`
	Server          json.RawMessage `json:"server,omitempty"`
	LocalTimestamp  int64           `json:"local_timestamp"`
	ServerUpdatedAt int64           `json:"server_updated_at"`
	Resolution      Outcome         `json:"resolution"`
}

// Result summarises one processing pass.
type Result struct {
	Success   int        `json:"success"`
	Failed    int        `json:"failed"`
	Conflicts []Conflict `json:"conflicts,omitempty"`
	Stalled   []Entry    `json:"stalled,omitempty"`
	Offline   bool       `json:"offline,omitempty"`
}

// ProcessOptions tune a single pass.
type ProcessOptions struct {
	// Force skips the connectivity check, for passes the user asked for explicitly.
	Force bool
}

// Stats counts entries per lifecycle bucket.
type Stats struct {
	Pending int       `json:"pending"`
	Failed  int       `json:"failed"`
	Syncing int       `json:"syncing"`
	Stalled int       `json:"stalled"`
	Oldest  time.Time `json:"oldest"`
}

// Option customises a Queue.
type Option func(*Queue)

func WithConnectivity(c Connectivity) Option {
	return func(q *Queue) {
		if c != nil {
			q.connectivity = c
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

func WithSleeper(sleep Sleeper) Option {
	return func(q *Queue) {
		if sleep != nil {
			q.sleep = sleep
		}
	}
}

func WithBus(bus *Bus) Option {
	return func(q *Queue) {
		if bus != nil {
			q.bus = bus
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxRetries = n
		}
	}
}

// WithBackoff sets the base delay and the cap of the exponential backoff.
func WithBackoff(base, max time.Duration) Option {
	return func(q *Queue) {
		if base > 0 {
			q.baseDelay = base
		}
		if max > 0 {
			q.maxDelay = max
		}
	}
}

// WithRequestTimeout bounds each remote application. Zero leaves it unbounded.
func WithRequestTimeout(d time.Duration) Option {
	return func(q *Queue) {
		q.requestTimeout = d
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(q *Queue) {
		if log != nil {
			q.log = log
		}
	}
}

type alwaysOnline struct{}

func (alwaysOnline) Online() bool { return true }

// Queue is the durable ordered log of local mutations awaiting replay against
// the household server.
type Queue struct {
	db      *gorm.DB
	applier Applier
	bus     *Bus
	log     *zap.Logger

	connectivity   Connectivity
	now            func() time.Time
	sleep          Sleeper
	maxRetries     int
	baseDelay      time.Duration
	maxDelay       time.Duration
	requestTimeout time.Duration

	processMu sync.Mutex
}

// New constructs a queue over db. The sync_queue table must already be migrated.
func New(db *gorm.DB, applier Applier, opts ...Option) *Queue {
	q := &Queue{
		db:           db,
		applier:      applier,
		bus:          NewBus(),
		log:          logger.WithModule("syncqueue"),
		connectivity: alwaysOnline{},
		now:          time.Now,
		sleep:        sleepContext,
		maxRetries:   DefaultMaxRetries,
		baseDelay:    DefaultBaseDelay,
		maxDelay:     DefaultMaxDelay,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Bus exposes the event bus.
func (q *Queue) Bus() *Bus {
	return q.bus
}

// MaxRetries reports the retry cap.
func (q *Queue) MaxRetries() int {
	return q.maxRetries
}

// Enqueue records change as pending and returns its id.
func (q *Queue) Enqueue(ctx context.Context, change Change) (uint, error) {
	row := modelFromChange(change, q.now().UnixMilli())
	if err := q.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, fmt.Errorf("syncqueue: enqueue: %w", err)
	}

	entry := entryFromModel(row)
	q.log.Debug("change queued",
		zap.Uint("id", entry.ID),
		zap.String("type", string(entry.Type)),
		zap.String("entity", entry.Entity),
		zap.String("entity_id", entry.EntityID),
	)
	q.bus.Publish(Event{Type: EventEnqueued, Entry: &entry})
	q.publishDepth(ctx)
	return row.ID, nil
}

// GetPending returns pending and failed entries, oldest first.
func (q *Queue) GetPending(ctx context.Context) ([]Entry, error) {
	var rows []models.QueueEntry
	if err := q.db.WithContext(ctx).
		Where("status IN ?", []string{string(StatusPending), string(StatusFailed)}).
		Order("timestamp ASC").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("syncqueue: list pending: %w", err)
	}
	return entriesFromModels(rows), nil
}

// Dequeue deletes ids in a single statement.
func (q *Queue) Dequeue(ctx context.Context, ids ...uint) error {
	if len(ids) == 0 {
		return nil
	}
	if err := q.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.QueueEntry{}).Error; err != nil {
		return fmt.Errorf("syncqueue: dequeue: %w", err)
	}
	return nil
}

// UpdateStatus moves an entry to status. A non-empty errMsg is recorded and counts as a retry.
func (q *Queue) UpdateStatus(ctx context.Context, id uint, status Status, errMsg string) error {
	updates := map[string]any{"status": string(status)}
	if errMsg != "" {
		updates["error"] = errMsg
		updates["retry_count"] = gorm.Expr("retry_count + 1")
	}

	result := q.db.WithContext(ctx).Model(&models.QueueEntry{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("syncqueue: update status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound.WithMessage(fmt.Sprintf("queue entry %d not found", id))
	}
	return nil
}

// Backoff returns the wait after a failure of an entry that had retryCount prior failures.
func (q *Queue) Backoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount >= 32 {
		return q.maxDelay
	}
	delay := q.baseDelay << uint(retryCount)
	if delay <= 0 || delay > q.maxDelay {
		return q.maxDelay
	}
	return delay
}

// Process replays pending entries in order. Entries at the retry cap are skipped
// and reported as stalled; a failing entry never stops the batch. Concurrent
// calls run one after another.
func (q *Queue) Process(ctx context.Context, opts ProcessOptions) (Result, error) {
	q.processMu.Lock()
	defer q.processMu.Unlock()

	if !opts.Force && !q.connectivity.Online() {
		monitoring.RecordSyncPass(0, 0, 0, 0, true)
		return Result{Offline: true}, nil
	}

	start := q.now()
	pending, err := q.GetPending(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(pending) == 0 {
		return Result{}, nil
	}

	q.bus.Publish(Event{Type: EventStarted, Pending: len(pending)})
	q.log.Info("processing sync queue", zap.Int("pending", len(pending)))

	var (
		result  Result
		applied []uint
		remap   = map[string]string{}
		// updated_at of entities written earlier in this pass
		written = map[string]int64{}
	)

	for i := range pending {
		if ctx.Err() != nil {
			break
		}
		entry := pending[i]

		if entry.RetryCount >= q.maxRetries {
			result.Failed++
			result.Stalled = append(result.Stalled, entry)
			monitoring.RecordSyncEntry(string(entry.Type), "stalled")
			q.bus.Publish(Event{Type: EventEntryStalled, Entry: &entry, Err: apperrors.ErrMaxRetriesExceeded.Error()})
			continue
		}

		if serverID, ok := remap[remapKey(entry.Entity, entry.EntityID)]; ok {
			entry.EntityID = serverID
		}
		if ts, ok := written[remapKey(entry.Entity, entry.EntityID)]; ok && entry.ServerTimestamp != nil && ts > *entry.ServerTimestamp {
			entry.ServerTimestamp = &ts
		}

		if err := q.UpdateStatus(ctx, entry.ID, StatusSyncing, ""); err != nil {
			q.log.Warn("mark entry syncing", zap.Uint("id", entry.ID), zap.Error(err))
			continue
		}

		outcome, err := q.apply(ctx, entry)
		if outcome.Conflict != nil {
			conflict := *outcome.Conflict
			result.Conflicts = append(result.Conflicts, conflict)
			monitoring.RecordSyncConflict(entry.Entity, string(conflict.Resolution))
			q.bus.Publish(Event{
				Type:     EventConflict,
				Entry:    &entry,
				Conflict: &conflict,
				Err:      apperrors.ErrSyncConflict.WithMessage(fmt.Sprintf("%s %s resolved as %s", entry.Entity, entry.EntityID, conflict.Resolution)).Error(),
			})
		}

		if err != nil {
			result.Failed++
			q.fail(ctx, entry, err)
			if sleepErr := q.sleep(ctx, q.Backoff(entry.RetryCount)); sleepErr != nil {
				break
			}
			continue
		}

		result.Success++
		applied = append(applied, entry.ID)
		monitoring.RecordSyncEntry(string(entry.Type), "applied")

		serverID := ""
		if entry.Type == Create && outcome.ServerID != "" && outcome.ServerID != entry.EntityID {
			serverID = outcome.ServerID
			remap[remapKey(entry.Entity, entry.EntityID)] = serverID
			if _, err := q.RemapEntityID(ctx, entry.Entity, entry.EntityID, serverID); err != nil {
				q.log.Warn("remap queued entity id", zap.String("entity_id", entry.EntityID), zap.Error(err))
			}
		}
		if outcome.ServerUpdatedAt > 0 && entry.Type != Delete {
			id := entry.EntityID
			if serverID != "" {
				id = serverID
			}
			written[remapKey(entry.Entity, id)] = outcome.ServerUpdatedAt
			if _, err := q.AdvanceServerTimestamp(ctx, entry.Entity, id, outcome.ServerUpdatedAt); err != nil {
				q.log.Warn("advance queued server timestamp", zap.String("entity_id", id), zap.Error(err))
			}
		}
		q.bus.Publish(Event{Type: EventEntryApplied, Entry: &entry, ServerID: serverID})
	}

	// a cancelled pass still removes what the server already accepted
	if err := q.Dequeue(context.WithoutCancel(ctx), applied...); err != nil {
		q.log.Error("dequeue applied entries", zap.Error(err))
	}

	duration := q.now().Sub(start)
	monitoring.RecordSyncPass(result.Success, result.Failed, len(result.Conflicts), duration, false)
	q.publishDepth(context.WithoutCancel(ctx))
	q.bus.Publish(Event{Type: EventFinished, Result: &result})
	q.log.Info("sync queue processed",
		zap.Int("success", result.Success),
		zap.Int("failed", result.Failed),
		zap.Int("conflicts", len(result.Conflicts)),
		zap.Int("stalled", len(result.Stalled)),
		zap.Duration("duration", duration),
	)
	return result, ctx.Err()
}

func (q *Queue) apply(ctx context.Context, entry Entry) (ApplyResult, error) {
	if q.applier == nil {
		return ApplyResult{}, apperrors.ErrRemoteApplicationFailed.WithMessage("no remote configured")
	}
	if q.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.requestTimeout)
		defer cancel()
	}
	return q.applier.Apply(ctx, entry)
}

func (q *Queue) fail(ctx context.Context, entry Entry, cause error) {
	msg := cause.Error()
	if err := q.UpdateStatus(context.WithoutCancel(ctx), entry.ID, StatusFailed, msg); err != nil {
		q.log.Error("record entry failure", zap.Uint("id", entry.ID), zap.Error(err))
	}

	failed := entry
	failed.Status = StatusFailed
	failed.RetryCount++
	failed.Error = msg

	monitoring.RecordSyncEntry(string(entry.Type), "failed")
	q.bus.Publish(Event{Type: EventEntryFailed, Entry: &failed, Err: msg})
	q.log.Warn("queued change failed",
		zap.Uint("id", entry.ID),
		zap.String("type", string(entry.Type)),
		zap.String("entity", entry.Entity),
		zap.String("entity_id", entry.EntityID),
		zap.Int("retry_count", failed.RetryCount),
		zap.Error(cause),
	)
}

// RemapEntityID points queued entries of a locally identified entity at its server id.
func (q *Queue) RemapEntityID(ctx context.Context, entity, localID, serverID string) (int64, error) {
	result := q.db.WithContext(ctx).Model(&models.QueueEntry{}).
		Where("entity = ? AND entity_id = ?", entity, localID).
		Update("entity_id", serverID)
	if result.Error != nil {
		return 0, fmt.Errorf("syncqueue: remap: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// AdvanceServerTimestamp moves the base timestamp of queued updates of an entity
// forward to ts, the updated_at the server reported for a write of this client.
func (q *Queue) AdvanceServerTimestamp(ctx context.Context, entity, entityID string, ts int64) (int64, error) {
	result := q.db.WithContext(ctx).Model(&models.QueueEntry{}).
		Where("entity = ? AND entity_id = ? AND server_timestamp IS NOT NULL AND server_timestamp < ?", entity, entityID, ts).
		Update("server_timestamp", ts)
	if result.Error != nil {
		return 0, fmt.Errorf("syncqueue: advance server timestamp: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DiscardEntity drops every queued entry of an entity that never reached the server.
func (q *Queue) DiscardEntity(ctx context.Context, entity, entityID string) (int64, error) {
	result := q.db.WithContext(ctx).
		Where("entity = ? AND entity_id = ?", entity, entityID).
		Delete(&models.QueueEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("syncqueue: discard: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		q.publishDepth(ctx)
	}
	return result.RowsAffected, nil
}

// Stalled returns entries that reached the retry cap and need a manual decision.
func (q *Queue) Stalled(ctx context.Context) ([]Entry, error) {
	var rows []models.QueueEntry
	if err := q.db.WithContext(ctx).
		Where("status IN ? AND retry_count >= ?", []string{string(StatusPending), string(StatusFailed)}, q.maxRetries).
		Order("timestamp ASC").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("syncqueue: list stalled: %w", err)
	}
	return entriesFromModels(rows), nil
}

// Retry resets a stalled entry so the next pass attempts it again.
func (q *Queue) Retry(ctx context.Context, id uint) error {
	result := q.db.WithContext(ctx).Model(&models.QueueEntry{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": string(StatusPending), "retry_count": 0, "error": nil})
	if result.Error != nil {
		return fmt.Errorf("syncqueue: retry: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound.WithMessage(fmt.Sprintf("queue entry %d not found", id))
	}
	return nil
}

// RecoverInFlight returns entries left syncing by an interrupted pass to pending.
func (q *Queue) RecoverInFlight(ctx context.Context) (int64, error) {
	result := q.db.WithContext(ctx).Model(&models.QueueEntry{}).
		Where("status = ?", string(StatusSyncing)).
		Update("status", string(StatusPending))
	if result.Error != nil {
		return 0, fmt.Errorf("syncqueue: recover: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		q.log.Info("recovered interrupted queue entries", zap.Int64("count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

// Stats counts entries by status. Stalled entries are counted separately from pending and failed.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	var rows []struct {
		Status  string
		Stalled bool
		Total   int
		Oldest  int64
	}
	if err := q.db.WithContext(ctx).Model(&models.QueueEntry{}).
		Select("status, retry_count >= ? AS stalled, COUNT(*) AS total, MIN(timestamp) AS oldest", q.maxRetries).
		Group("status, stalled").
		Scan(&rows).Error; err != nil {
		return Stats{}, fmt.Errorf("syncqueue: stats: %w", err)
	}

	var (
		stats  Stats
		oldest int64
	)
	for _, row := range rows {
		switch {
		case Status(row.Status) == StatusSyncing:
			stats.Syncing += row.Total
		case row.Stalled:
			stats.Stalled += row.Total
		case Status(row.Status) == StatusFailed:
			stats.Failed += row.Total
		default:
			stats.Pending += row.Total
		}
		if row.Oldest > 0 && (oldest == 0 || row.Oldest < oldest) {
			oldest = row.Oldest
		}
	}
	if oldest > 0 {
		stats.Oldest = time.UnixMilli(oldest)
	}
	return stats, nil
}

// Counts adapts Stats for health probes.
func (q *Queue) Counts(ctx context.Context) (pending, failed, stalled int, err error) {
	stats, err := q.Stats(ctx)
	if err != nil {
		return 0, 0, 0, err
	}
	return stats.Pending, stats.Failed, stats.Stalled, nil
}

// Clear removes every entry.
func (q *Queue) Clear(ctx context.Context) error {
	if err := q.db.WithContext(ctx).Where("1 = 1").Delete(&models.QueueEntry{}).Error; err != nil {
		return fmt.Errorf("syncqueue: clear: %w", err)
	}
	q.publishDepth(ctx)
	return nil
}

func (q *Queue) publishDepth(ctx context.Context) {
	stats, err := q.Stats(ctx)
	if err != nil {
		return
	}
	monitoring.SetQueueDepth(stats.Pending, stats.Failed, stats.Stalled)
}

func entriesFromModels(rows []models.QueueEntry) []Entry {
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, entryFromModel(row))
	}
	return entries
}

func remapKey(entity, id string) string {
	return entity + "/" + id
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
