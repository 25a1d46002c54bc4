package maintenance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"

	"github.com/hearthly/hearth/internal/syncqueue"
)

type countingDrainer struct {
	calls atomic.Int32
	err   error
}

func (d *countingDrainer) Process(context.Context, syncqueue.ProcessOptions) (syncqueue.Result, error) {
	d.calls.Add(1)
	return syncqueue.Result{Success: 1}, d.err
}

type countingProber struct{ calls atomic.Int32 }

func (p *countingProber) Probe(context.Context) bool {
	p.calls.Add(1)
	return true
}

type countingRefresher struct {
	calls atomic.Int32
	err   error
}

func (r *countingRefresher) RefreshStale(context.Context) (int, error) {
	r.calls.Add(1)
	return 2, r.err
}

type fixedClock struct {
	current time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.current
}

func TestSchedulerRunOnce(t *testing.T) {
	drain := &countingDrainer{}
	probe := &countingProber{}
	refresh := &countingRefresher{}
	clock := fixedClock{current: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)}

	s := NewScheduler(drain, probe, refresh,
		WithNow(clock.Now),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
	)

	require.NoError(t, s.RunOnce(context.Background()))
	require.Equal(t, int32(1), drain.calls.Load())
	require.Equal(t, int32(1), probe.calls.Load())
	require.Equal(t, int32(1), refresh.calls.Load())
}

func TestSchedulerRunOnceCollectsErrors(t *testing.T) {
	drain := &countingDrainer{err: errors.New("queue locked")}
	refresh := &countingRefresher{err: errors.New("cache offline")}

	s := NewScheduler(drain, nil, refresh)
	err := s.RunOnce(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "queue locked")
	require.Contains(t, err.Error(), "cache offline")
}

func TestSchedulerSkipsMissingJobs(t *testing.T) {
	s := NewScheduler(nil, nil, nil)
	require.NoError(t, s.Start(context.Background()))
	require.Empty(t, s.cron.Entries())
	<-s.Stop().Done()
}

func TestSchedulerRejectsInvalidSpec(t *testing.T) {
	s := NewScheduler(&countingDrainer{}, nil, nil, WithDrainSchedule("every now and then"))
	require.Error(t, s.Start(context.Background()))
}

func TestSchedulerRegistersJobs(t *testing.T) {
	s := NewScheduler(&countingDrainer{}, &countingProber{}, &countingRefresher{},
		WithDrainSchedule("@every 1h"),
		WithProbeSchedule("@every 1h"),
		WithRefreshSchedule("@every 1h"),
	)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { <-s.Stop().Done() })
	require.Len(t, s.cron.Entries(), 3)
}
