package middleware

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// RateStore counts requests per key inside a fixed window.
type RateStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
}

type memoryCounter struct {
	count     int
	windowEnd time.Time
}

// memoryRateStore keeps process-local counters. Expired windows are swept lazily.
type memoryRateStore struct {
	data      *xsync.MapOf[string, memoryCounter]
	nextSweep atomic.Int64
	clock     func() time.Time
}

// NewMemoryRateStore constructs an in-memory rate store.
func NewMemoryRateStore() RateStore {
	return newMemoryRateStore(time.Now)
}

func newMemoryRateStore(clock func() time.Time) *memoryRateStore {
	return &memoryRateStore{
		data:  xsync.NewMapOf[string, memoryCounter](),
		clock: clock,
	}
}

func (s *memoryRateStore) Increment(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	now := s.clock()
	s.sweep(now, window)

	counter, _ := s.data.Compute(key, func(old memoryCounter, loaded bool) (memoryCounter, bool) {
		if !loaded || !now.Before(old.windowEnd) {
			old = memoryCounter{windowEnd: now.Add(window)}
		}
		old.count++
		return old, false
	})

	return counter.count, counter.windowEnd.Sub(now), nil
}

func (s *memoryRateStore) sweep(now time.Time, window time.Duration) {
	next := s.nextSweep.Load()
	if now.UnixNano() < next || !s.nextSweep.CompareAndSwap(next, now.Add(window).UnixNano()) {
		return
	}
	s.data.Range(func(key string, counter memoryCounter) bool {
		if !now.Before(counter.windowEnd) {
			s.data.Delete(key)
		}
		return true
	})
}
