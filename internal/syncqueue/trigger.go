package syncqueue

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// RestoreSource notifies when connectivity comes back.
type RestoreSource interface {
	OnRestored(fn func()) (unsubscribe func())
}

// Trigger runs Process in the background on demand. Requests arriving while a
// pass runs collapse into a single follow-up pass.
type Trigger struct {
	ctx   context.Context
	queue *Queue

	running atomic.Bool
	again   atomic.Bool
	wg      sync.WaitGroup
}

// NewTrigger binds a trigger to queue. Passes stop when ctx is cancelled.
func NewTrigger(ctx context.Context, queue *Queue) *Trigger {
	return &Trigger{ctx: ctx, queue: queue}
}

// Attach fires the trigger whenever source reports restored connectivity.
func (t *Trigger) Attach(source RestoreSource) func() {
	if source == nil {
		return func() {}
	}
	return source.OnRestored(t.Fire)
}

// Fire requests a pass.
func (t *Trigger) Fire() {
	t.again.Store(true)
	t.start()
}

func (t *Trigger) start() {
	if !t.running.CompareAndSwap(false, true) {
		return
	}
	t.wg.Add(1)
	go t.loop()
}

func (t *Trigger) loop() {
	defer t.wg.Done()
	for {
		for t.again.Swap(false) {
			if t.ctx.Err() != nil {
				break
			}
			if _, err := t.queue.Process(t.ctx, ProcessOptions{}); err != nil {
				t.queue.log.Warn("triggered sync pass failed", zap.Error(err))
			}
		}
		t.running.Store(false)
		// a Fire between the last Swap and Store would otherwise be lost
		if !t.again.Load() || !t.running.CompareAndSwap(false, true) {
			return
		}
	}
}

// Wait blocks until no pass is running.
func (t *Trigger) Wait() {
	t.wg.Wait()
}
