package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type collectors struct {
	apiLatency          *prometheus.HistogramVec
	realtimeConnections prometheus.Gauge
	realtimeBroadcasts  *prometheus.CounterVec
	realtimeFailures    *prometheus.CounterVec
	maintenanceRuns     *prometheus.CounterVec
	maintenanceDuration *prometheus.HistogramVec
	maintenanceLastRun  *prometheus.GaugeVec

	cacheWrites       *prometheus.CounterVec
	cacheEvictions    *prometheus.CounterVec
	cacheEvictedBytes prometheus.Counter
	cacheUsageBytes   prometheus.Gauge
	cacheQuotaBytes   prometheus.Gauge

	syncPasses        *prometheus.CounterVec
	syncPassDuration  prometheus.Histogram
	syncEntries       *prometheus.CounterVec
	syncConflicts     *prometheus.CounterVec
	queueDepth        *prometheus.GaugeVec
	connectivityState prometheus.Gauge
	remoteRequests    *prometheus.CounterVec
}

func newCollectors(namespace string) *collectors {
	buckets := prometheus.DefBuckets
	passBuckets := []float64{
		0.05, 0.25, 1, 5, // sub-second to seconds
		15, 30, 60, 120, 300,
	}

	return &collectors{
		apiLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_latency_seconds",
				Help:      "API endpoint latency",
				Buckets:   buckets,
			},
			[]string{"method", "path", "status"},
		),
		realtimeConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "realtime_connections",
				Help:      "Active realtime websocket connections",
			},
		),
		realtimeBroadcasts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "realtime_broadcasts_total",
				Help:      "Entity change messages broadcast per stream",
			},
			[]string{"stream"},
		),
		realtimeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "realtime_failures_total",
				Help:      "Realtime broadcast or subscription failures",
			},
			[]string{"stream", "type"},
		),
		maintenanceRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "maintenance_runs_total",
				Help:      "Background job executions",
			},
			[]string{"job", "result"},
		),
		maintenanceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "maintenance_duration_seconds",
				Help:      "Background job duration",
				Buckets:   buckets,
			},
			[]string{"job"},
		),
		maintenanceLastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "maintenance_last_success_timestamp",
				Help:      "Timestamp of the last successful background job run (seconds since epoch)",
			},
			[]string{"job"},
		),
		cacheWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "offline_cache_writes_total",
				Help:      "Offline collection writes by entity and result",
			},
			[]string{"entity", "result"},
		),
		cacheEvictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "offline_cache_evictions_total",
				Help:      "Offline collections evicted under storage pressure",
			},
			[]string{"entity"},
		),
		cacheEvictedBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "offline_cache_evicted_bytes_total",
				Help:      "Bytes reclaimed by offline cache eviction",
			},
		),
		cacheUsageBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "offline_cache_usage_bytes",
				Help:      "Bytes used by the offline store",
			},
		),
		cacheQuotaBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "offline_cache_quota_bytes",
				Help:      "Configured offline store budget",
			},
		),
		syncPasses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_passes_total",
				Help:      "Mutation queue processing passes by outcome",
			},
			[]string{"result"},
		),
		syncPassDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sync_pass_duration_seconds",
				Help:      "Duration of mutation queue processing passes",
				Buckets:   passBuckets,
			},
		),
		syncEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_entries_total",
				Help:      "Queued mutations processed by type and result",
			},
			[]string{"type", "result"},
		),
		syncConflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_conflicts_total",
				Help:      "Conflicts detected during replay by resolution",
			},
			[]string{"entity", "resolution"},
		),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sync_queue_entries",
				Help:      "Mutation queue entries by status",
			},
			[]string{"status"},
		),
		connectivityState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "connectivity_online",
				Help:      "1 when the household server is reachable",
			},
		),
		remoteRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remote_requests_total",
				Help:      "Client API requests by method and outcome",
			},
			[]string{"method", "result"},
		),
	}
}

func (c *collectors) all() []prometheus.Collector {
	return []prometheus.Collector{
		c.apiLatency,
		c.realtimeConnections,
		c.realtimeBroadcasts,
		c.realtimeFailures,
		c.maintenanceRuns,
		c.maintenanceDuration,
		c.maintenanceLastRun,
		c.cacheWrites,
		c.cacheEvictions,
		c.cacheEvictedBytes,
		c.cacheUsageBytes,
		c.cacheQuotaBytes,
		c.syncPasses,
		c.syncPassDuration,
		c.syncEntries,
		c.syncConflicts,
		c.queueDepth,
		c.connectivityState,
		c.remoteRequests,
	}
}

// observeDuration records a duration in seconds on the supplied histogram observer.
func observeDuration(observer prometheus.Observer, d time.Duration) {
	if observer == nil {
		return
	}
	if d < 0 {
		d = 0
	}
	observer.Observe(d.Seconds())
}
