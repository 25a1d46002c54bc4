package syncqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hearthly/hearth/internal/database/testutil"
	"github.com/hearthly/hearth/internal/models"
	apperrors "github.com/hearthly/hearth/pkg/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type switchable struct{ online atomic.Bool }

func (s *switchable) Online() bool { return s.online.Load() }

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// scriptedApplier fails entries whose EntityID is listed in failing and records every call.
type scriptedApplier struct {
	mu       sync.Mutex
	calls    []Entry
	failing  map[string]int // remaining failures per entity id, -1 forever
	serverID map[string]string
	delay    time.Duration
}

func newScriptedApplier() *scriptedApplier {
	return &scriptedApplier{failing: map[string]int{}, serverID: map[string]string{}}
}

func (a *scriptedApplier) Apply(ctx context.Context, entry Entry) (ApplyResult, error) {
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, entry)

	if n, ok := a.failing[entry.EntityID]; ok && n != 0 {
		if n > 0 {
			a.failing[entry.EntityID] = n - 1
		}
		return ApplyResult{}, apperrors.ErrRemoteApplicationFailed.WithInternal(errors.New("server said no"))
	}
	return ApplyResult{ServerID: a.serverID[entry.EntityID]}, nil
}

func (a *scriptedApplier) Calls() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Entry(nil), a.calls...)
}

func (a *scriptedApplier) callIDs() []string {
	var out []string
	for _, c := range a.Calls() {
		out = append(out, fmt.Sprintf("%s:%s", c.Type, c.EntityID))
	}
	return out
}

type harness struct {
	queue   *Queue
	applier *scriptedApplier
	clock   *fakeClock
	net     *switchable
	sleeper *recordingSleeper
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithOfflineSchema())
	h := &harness{
		applier: newScriptedApplier(),
		clock:   &fakeClock{now: time.UnixMilli(1_700_000_000_000)},
		net:     &switchable{},
		sleeper: &recordingSleeper{},
	}
	h.net.online.Store(true)
	base := []Option{WithClock(h.clock.Now), WithConnectivity(h.net), WithSleeper(h.sleeper.Sleep)}
	h.queue = New(db, h.applier, append(base, opts...)...)
	return h
}

func (h *harness) enqueue(t *testing.T, typ ChangeType, entityID string) uint {
	t.Helper()
	id, err := h.queue.Enqueue(context.Background(), Change{
		Type:     typ,
		Entity:   models.EntityChores,
		EntityID: entityID,
		Data:     json.RawMessage(`{"title":"dishes"}`),
	})
	require.NoError(t, err)
	return id
}

func TestEnqueueStartsPending(t *testing.T) {
	h := newHarness(t)
	id := h.enqueue(t, Create, "local_1")
	require.NotZero(t, id)

	pending, err := h.queue.GetPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, StatusPending, pending[0].Status)
	require.Zero(t, pending[0].RetryCount)
	require.Equal(t, int64(1_700_000_000_000), pending[0].Timestamp)
	require.JSONEq(t, `{"title":"dishes"}`, string(pending[0].Data))
}

func TestGetPendingOrdersByTimestampThenID(t *testing.T) {
	h := newHarness(t)
	base := h.clock.Now()

	h.clock.Set(base.Add(2 * time.Second))
	h.enqueue(t, Update, "late")
	h.clock.Set(base)
	h.enqueue(t, Update, "early-a")
	h.enqueue(t, Update, "early-b")

	pending, err := h.queue.GetPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"early-a", "early-b", "late"}, []string{pending[0].EntityID, pending[1].EntityID, pending[2].EntityID})
}

func TestProcessOfflineDoesNothing(t *testing.T) {
	h := newHarness(t)
	h.enqueue(t, Create, "local_1")
	h.net.online.Store(false)

	result, err := h.queue.Process(context.Background(), ProcessOptions{})
	require.NoError(t, err)
	require.True(t, result.Offline)
	require.Empty(t, h.applier.Calls())

	forced, err := h.queue.Process(context.Background(), ProcessOptions{Force: true})
	require.NoError(t, err)
	require.Equal(t, 1, forced.Success)
}

func TestProcessAppliesInOrderAndDequeues(t *testing.T) {
	h := newHarness(t)
	h.enqueue(t, Create, "a")
	h.enqueue(t, Update, "b")
	h.enqueue(t, Delete, "c")

	result, err := h.queue.Process(context.Background(), ProcessOptions{})
	require.NoError(t, err)
	require.Equal(t, 3, result.Success)
	require.Zero(t, result.Failed)
	require.Equal(t, []string{"CREATE:a", "UPDATE:b", "DELETE:c"}, h.applier.callIDs())

	pending, err := h.queue.GetPending(context.Background())
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestFailureDoesNotAbortBatch(t *testing.T) {
	h := newHarness(t)
	h.applier.failing["a"] = -1
	h.enqueue(t, Update, "a")
	h.enqueue(t, Update, "b")

	result, err := h.queue.Process(context.Background(), ProcessOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, result.Success)
	require.Equal(t, 1, result.Failed)

	pending, err := h.queue.GetPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "a", pending[0].EntityID)
	require.Equal(t, StatusFailed, pending[0].Status)
	require.Equal(t, 1, pending[0].RetryCount)
	require.Contains(t, pending[0].Error, "server said no")
	require.Equal(t, []time.Duration{time.Second}, h.sleeper.Delays())
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, time.Second, h.queue.Backoff(0))
	require.Equal(t, 2*time.Second, h.queue.Backoff(1))
	require.Equal(t, 16*time.Second, h.queue.Backoff(4))
	require.Equal(t, 30*time.Second, h.queue.Backoff(5))
	require.Equal(t, 30*time.Second, h.queue.Backoff(64))
}

func TestRetryCapHaltsRetriesWithoutBlocking(t *testing.T) {
	h := newHarness(t)
	h.applier.failing["stuck"] = -1
	h.enqueue(t, Update, "stuck")

	for pass := 0; pass < DefaultMaxRetries; pass++ {
		_, err := h.queue.Process(context.Background(), ProcessOptions{})
		require.NoError(t, err)
	}
	require.Len(t, h.applier.Calls(), DefaultMaxRetries)
	require.Equal(t,
		[]time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second},
		h.sleeper.Delays(),
	)

	h.enqueue(t, Update, "fresh")
	result, err := h.queue.Process(context.Background(), ProcessOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, result.Success)
	require.Equal(t, 1, result.Failed)
	require.Len(t, result.Stalled, 1)
	require.Equal(t, "stuck", result.Stalled[0].EntityID)
	require.Len(t, h.applier.Calls(), DefaultMaxRetries+1)

	stalled, err := h.queue.Stalled(context.Background())
	require.NoError(t, err)
	require.Len(t, stalled, 1)

	stats, err := h.queue.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Stalled)
	require.Zero(t, stats.Pending)

	require.NoError(t, h.queue.Retry(context.Background(), stalled[0].ID))
	delete(h.applier.failing, "stuck")
	result, err = h.queue.Process(context.Background(), ProcessOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, result.Success)
}

func TestEventuallyAppliedExactlyOnce(t *testing.T) {
	h := newHarness(t)
	h.applier.failing["flaky"] = 2
	h.enqueue(t, Update, "flaky")

	for pass := 0; pass < 4; pass++ {
		_, err := h.queue.Process(context.Background(), ProcessOptions{})
		require.NoError(t, err)
	}

	require.Len(t, h.applier.Calls(), 3)
	pending, err := h.queue.GetPending(context.Background())
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestCreateRemapsLaterEntries(t *testing.T) {
	h := newHarness(t)
	h.applier.serverID["local_1"] = "srv-1"
	h.applier.failing["srv-1"] = 1

	var applied []Event
	h.queue.Bus().Subscribe(func(e Event) {
		if e.Type == EventEntryApplied {
			applied = append(applied, e)
		}
	})

	h.enqueue(t, Create, "local_1")
	h.enqueue(t, Update, "local_1")

	result, err := h.queue.Process(context.Background(), ProcessOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, result.Success)
	require.Equal(t, []string{"CREATE:local_1", "UPDATE:srv-1"}, h.applier.callIDs())
	require.Len(t, applied, 1)
	require.Equal(t, "srv-1", applied[0].ServerID)

	pending, err := h.queue.GetPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "srv-1", pending[0].EntityID)
}

func TestConcurrentProcessAppliesEachEntryOnce(t *testing.T) {
	h := newHarness(t)
	h.applier.delay = 5 * time.Millisecond
	for i := 0; i < 5; i++ {
		h.enqueue(t, Update, fmt.Sprintf("e%d", i))
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.queue.Process(context.Background(), ProcessOptions{})
		}()
	}
	wg.Wait()

	require.Len(t, h.applier.Calls(), 5)
}

func TestCancelledBackoffStopsPass(t *testing.T) {
	h := newHarness(t)
	h.applier.failing["a"] = -1
	h.enqueue(t, Update, "a")
	h.enqueue(t, Update, "b")

	ctx, cancel := context.WithCancel(context.Background())
	h.queue.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	result, err := h.queue.Process(ctx, ProcessOptions{})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, result.Failed)
	require.Equal(t, []string{"UPDATE:a"}, h.applier.callIDs())
}

func TestDiscardEntityDropsQueuedEntries(t *testing.T) {
	h := newHarness(t)
	h.enqueue(t, Create, "local_1")
	h.enqueue(t, Update, "local_1")
	h.enqueue(t, Create, "local_2")

	removed, err := h.queue.DiscardEntity(context.Background(), models.EntityChores, "local_1")
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)

	pending, err := h.queue.GetPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "local_2", pending[0].EntityID)
}

func TestRecoverInFlightResetsSyncing(t *testing.T) {
	h := newHarness(t)
	id := h.enqueue(t, Update, "a")
	require.NoError(t, h.queue.UpdateStatus(context.Background(), id, StatusSyncing, ""))

	pending, err := h.queue.GetPending(context.Background())
	require.NoError(t, err)
	require.Empty(t, pending)

	recovered, err := h.queue.RecoverInFlight(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), recovered)

	pending, err = h.queue.GetPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestUpdateStatusUnknownEntry(t *testing.T) {
	h := newHarness(t)
	err := h.queue.UpdateStatus(context.Background(), 999, StatusFailed, "boom")
	require.True(t, apperrors.IsNotFound(err))
	require.True(t, apperrors.IsNotFound(h.queue.Retry(context.Background(), 999)))
}

func TestClearEmptiesQueue(t *testing.T) {
	h := newHarness(t)
	h.enqueue(t, Create, "a")
	h.enqueue(t, Create, "b")
	require.NoError(t, h.queue.Clear(context.Background()))

	stats, err := h.queue.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, Stats{}, stats)
}

func TestTriggerCollapsesOverlappingRequests(t *testing.T) {
	h := newHarness(t)
	h.applier.delay = 5 * time.Millisecond
	for i := 0; i < 3; i++ {
		h.enqueue(t, Update, fmt.Sprintf("e%d", i))
	}

	var passes atomic.Int32
	h.queue.Bus().Subscribe(func(e Event) {
		if e.Type == EventStarted {
			passes.Add(1)
		}
	})

	trigger := NewTrigger(context.Background(), h.queue)
	for i := 0; i < 10; i++ {
		trigger.Fire()
	}
	trigger.Wait()

	require.Len(t, h.applier.Calls(), 3)
	require.LessOrEqual(t, passes.Load(), int32(2))
}

type restoreHub struct {
	mu  sync.Mutex
	fns []func()
}

func (r *restoreHub) OnRestored(fn func()) func() {
	r.mu.Lock()
	r.fns = append(r.fns, fn)
	r.mu.Unlock()
	return func() {}
}

func (r *restoreHub) restore() {
	r.mu.Lock()
	fns := append([]func(){}, r.fns...)
	r.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func TestTriggerRunsOnRestoredConnectivity(t *testing.T) {
	h := newHarness(t)
	h.enqueue(t, Create, "a")

	hub := &restoreHub{}
	trigger := NewTrigger(context.Background(), h.queue)
	trigger.Attach(hub)

	hub.restore()
	trigger.Wait()

	require.Equal(t, []string{"CREATE:a"}, h.applier.callIDs())
}
