package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hearthly/hearth/internal/monitoring"
	"github.com/hearthly/hearth/internal/syncqueue"
	"github.com/hearthly/hearth/pkg/logger"
)

const (
	defaultDrainSpec   = "@every 1m"
	defaultProbeSpec   = "@every 15s"
	defaultRefreshSpec = "@every 5m"
)

// Job names as reported to monitoring.
const (
	JobProbe   = "connectivity_probe"
	JobDrain   = "queue_drain"
	JobRefresh = "stale_refresh"
)

// Drainer replays queued mutations.
type Drainer interface {
	Process(ctx context.Context, opts syncqueue.ProcessOptions) (syncqueue.Result, error)
}

// Prober checks whether the household server is reachable.
type Prober interface {
	Probe(ctx context.Context) bool
}

// Refresher reloads cached collections older than the stale threshold.
type Refresher interface {
	RefreshStale(ctx context.Context) (int, error)
}

// Scheduler runs the offline client's periodic safety nets: it probes connectivity,
// drains the mutation queue and refreshes stale collections.
type Scheduler struct {
	drain   Drainer
	probe   Prober
	refresh Refresher
	cron    *cron.Cron
	now     func() time.Time
	log     *zap.Logger

	drainSchedule   string
	probeSchedule   string
	refreshSchedule string
}

// Option customises the Scheduler.
type Option func(*Scheduler)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithNow overrides the clock used to time job runs.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDrainSchedule overrides the cron specification for queue draining.
func WithDrainSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.drainSchedule = spec
		}
	}
}

// WithProbeSchedule overrides the cron specification for connectivity probes.
func WithProbeSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.probeSchedule = spec
		}
	}
}

// WithRefreshSchedule overrides the cron specification for stale collection refresh.
func WithRefreshSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.refreshSchedule = spec
		}
	}
}

// NewScheduler constructs a Scheduler. Any nil dependency results in the
// corresponding job being skipped.
func NewScheduler(drain Drainer, probe Prober, refresh Refresher, opts ...Option) *Scheduler {
	s := &Scheduler{
		drain:           drain,
		probe:           probe,
		refresh:         refresh,
		now:             time.Now,
		drainSchedule:   defaultDrainSpec,
		probeSchedule:   defaultProbeSpec,
		refreshSchedule: defaultRefreshSpec,
		log:             logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.cron == nil {
		s.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return s
}

// Start registers the jobs and launches the cron scheduler. Overlapping runs of the
// same job are skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
		on   bool
	}{
		{JobProbe, s.probeSchedule, s.runProbe, s.probe != nil},
		{JobDrain, s.drainSchedule, s.runDrain, s.drain != nil},
		{JobRefresh, s.refreshSchedule, s.runRefresh, s.refresh != nil},
	}

	scheduled := 0
	for _, job := range jobs {
		if !job.on {
			continue
		}
		name, run := job.name, job.run
		wrapped := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
			if err := s.track(ctx, name, run); err != nil {
				s.log.Warn("maintenance job failed", zap.String("job", name), zap.Error(err))
			}
		}))
		if _, err := s.cron.AddJob(job.spec, wrapped); err != nil {
			return err
		}
		scheduled++
	}

	if scheduled > 0 {
		s.cron.Start()
	}
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (s *Scheduler) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// RunOnce executes every configured job sequentially: probe, drain, refresh.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	if s.probe != nil {
		errs = multierr.Append(errs, s.track(ctx, JobProbe, s.runProbe))
	}
	if s.drain != nil {
		errs = multierr.Append(errs, s.track(ctx, JobDrain, s.runDrain))
	}
	if s.refresh != nil {
		errs = multierr.Append(errs, s.track(ctx, JobRefresh, s.runRefresh))
	}
	return errs
}

func (s *Scheduler) track(ctx context.Context, job string, run func(context.Context) error) error {
	start := s.now()
	err := run(ctx)
	elapsed := s.now().Sub(start)

	result, message := "success", ""
	if err != nil {
		result, message = "failure", err.Error()
	}
	monitoring.RecordMaintenanceRun(job, result, message, elapsed)
	return err
}

func (s *Scheduler) runProbe(ctx context.Context) error {
	online := s.probe.Probe(ctx)
	s.log.Debug("connectivity probed", zap.Bool("online", online))
	return nil
}

func (s *Scheduler) runDrain(ctx context.Context) error {
	result, err := s.drain.Process(ctx, syncqueue.ProcessOptions{})
	if err != nil {
		return err
	}
	if result.Success > 0 || result.Failed > 0 {
		s.log.Info("queue drained",
			zap.Int("applied", result.Success),
			zap.Int("failed", result.Failed),
			zap.Int("conflicts", len(result.Conflicts)),
			zap.Int("stalled", len(result.Stalled)),
		)
	}
	return nil
}

func (s *Scheduler) runRefresh(ctx context.Context) error {
	refreshed, err := s.refresh.RefreshStale(ctx)
	if refreshed > 0 {
		s.log.Debug("stale collections refreshed", zap.Int("collections", refreshed))
	}
	return err
}
