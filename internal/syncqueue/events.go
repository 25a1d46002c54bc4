package syncqueue

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// EventType names a queue lifecycle notification.
type EventType string

const (
	EventEnqueued     EventType = "enqueued"
	EventStarted      EventType = "started"
	EventEntryApplied EventType = "entry_applied"
	EventEntryFailed  EventType = "entry_failed"
	EventEntryStalled EventType = "entry_stalled"
	EventConflict     EventType = "conflict"
	EventFinished     EventType = "finished"
)

// Event is delivered to Bus subscribers. ServerID is set on EventEntryApplied
// when a CREATE of a locally identified entity received its server id.
type Event struct {
	Type     EventType
	Entry    *Entry
	ServerID string
	Conflict *Conflict
	Result   *Result
	Pending  int
	Err      string
}

// Bus fans queue events out to subscribers. Handlers run synchronously on the
// publishing goroutine and must not call back into Process.
type Bus struct {
	next atomic.Uint64
	subs *xsync.MapOf[uint64, func(Event)]
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subs: xsync.NewMapOf[uint64, func(Event)]()}
}

// Subscribe registers fn and returns a function removing it.
func (b *Bus) Subscribe(fn func(Event)) func() {
	if b == nil || fn == nil {
		return func() {}
	}
	id := b.next.Add(1)
	b.subs.Store(id, fn)
	return func() { b.subs.Delete(id) }
}

// Publish delivers e to every subscriber.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.subs.Range(func(_ uint64, fn func(Event)) bool {
		fn(e)
		return true
	})
}
