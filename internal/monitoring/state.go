package monitoring

import (
	"sync"
	"sync/atomic"
	"time"
)

type statStore struct {
	realtimeConnections atomic.Int64
	realtimeBroadcasts  atomic.Uint64
	realtimeFailures    atomic.Uint64
	realtimeLastFailure atomic.Value // *FailureRecord

	cacheWrites        atomic.Uint64
	cacheQuotaExceeded atomic.Uint64
	cacheEvictions     atomic.Uint64
	cacheUsage         atomic.Int64
	cacheQuota         atomic.Int64

	syncPasses    atomic.Uint64
	syncApplied   atomic.Uint64
	syncFailed    atomic.Uint64
	syncConflicts atomic.Uint64
	syncLastPass  atomic.Int64 // unix nano
	syncLastState atomic.Value // string

	queuePending atomic.Int64
	queueFailed  atomic.Int64
	queueStalled atomic.Int64

	online        atomic.Bool
	onlineChanged atomic.Int64 // unix nano

	maintenance sync.Map // string -> *maintenanceStats
}

func newStatStore() *statStore {
	store := &statStore{}
	store.realtimeLastFailure.Store((*FailureRecord)(nil))
	store.syncLastState.Store("")
	return store
}

func (s *statStore) cloneMaintenance() []MaintenanceJobSummary {
	summaries := []MaintenanceJobSummary{}
	s.maintenance.Range(func(key, value any) bool {
		summaries = append(summaries, value.(*maintenanceStats).snapshot(key.(string)))
		return true
	})
	return summaries
}

func (s *statStore) summary() Summary {
	lastFailure, _ := s.realtimeLastFailure.Load().(*FailureRecord)
	lastState, _ := s.syncLastState.Load().(string)

	return Summary{
		GeneratedAt: time.Now(),
		Sync: SyncSummary{
			Passes:     s.syncPasses.Load(),
			Applied:    s.syncApplied.Load(),
			Failed:     s.syncFailed.Load(),
			Conflicts:  s.syncConflicts.Load(),
			LastResult: lastState,
			LastPassAt: unixNano(s.syncLastPass.Load()),
			Pending:    s.queuePending.Load(),
			Retrying:   s.queueFailed.Load(),
			Stalled:    s.queueStalled.Load(),
		},
		Cache: CacheSummary{
			Writes:        s.cacheWrites.Load(),
			QuotaExceeded: s.cacheQuotaExceeded.Load(),
			Evictions:     s.cacheEvictions.Load(),
			UsageBytes:    s.cacheUsage.Load(),
			QuotaBytes:    s.cacheQuota.Load(),
		},
		Connectivity: ConnectivitySummary{
			Online:    s.online.Load(),
			ChangedAt: unixNano(s.onlineChanged.Load()),
		},
		Realtime: RealtimeSummary{
			ActiveConnections: s.realtimeConnections.Load(),
			Broadcasts:        s.realtimeBroadcasts.Load(),
			Failures:          s.realtimeFailures.Load(),
			LastFailure:       lastFailure,
		},
		Maintenance: MaintenanceSummary{
			Jobs: s.cloneMaintenance(),
		},
	}
}

func (s *statStore) recordRealtimeConnection(delta int64) int64 {
	newValue := s.realtimeConnections.Add(delta)
	if newValue < 0 {
		s.realtimeConnections.Store(0)
	}
	return newValue
}

func (s *statStore) recordRealtimeFailure(record FailureRecord) {
	s.realtimeFailures.Add(1)
	cloned := record
	s.realtimeLastFailure.Store(&cloned)
}

func (s *statStore) recordCacheWrite(result string) {
	s.cacheWrites.Add(1)
	if result == "quota_exceeded" {
		s.cacheQuotaExceeded.Add(1)
	}
}

func (s *statStore) recordSyncPass(result string, applied, failed, conflicts int) {
	s.syncPasses.Add(1)
	s.syncApplied.Add(uint64(max(applied, 0)))
	s.syncFailed.Add(uint64(max(failed, 0)))
	s.syncConflicts.Add(uint64(max(conflicts, 0)))
	s.syncLastPass.Store(time.Now().UnixNano())
	s.syncLastState.Store(result)
}

func (s *statStore) recordConnectivity(online bool) {
	if s.online.Swap(online) != online || s.onlineChanged.Load() == 0 {
		s.onlineChanged.Store(time.Now().UnixNano())
	}
}

func (s *statStore) maintenanceEntry(job string) *maintenanceStats {
	if value, ok := s.maintenance.Load(job); ok {
		return value.(*maintenanceStats)
	}
	actual, _ := s.maintenance.LoadOrStore(job, &maintenanceStats{})
	return actual.(*maintenanceStats)
}

type maintenanceStats struct {
	lastStatus           atomic.Value // string
	lastError            atomic.Value // string
	lastRun              atomic.Int64 // unix nano
	lastDuration         atomic.Int64 // nanoseconds
	consecutiveFailures  atomic.Uint64
	totalRuns            atomic.Uint64
	lastSuccessfulRun    atomic.Int64
	consecutiveSuccesses atomic.Uint64
}

func (m *maintenanceStats) snapshot(job string) MaintenanceJobSummary {
	status, _ := m.lastStatus.Load().(string)
	errMsg, _ := m.lastError.Load().(string)

	return MaintenanceJobSummary{
		Job:                 job,
		LastStatus:          status,
		LastRunAt:           unixNano(m.lastRun.Load()),
		LastDuration:        time.Duration(m.lastDuration.Load()),
		LastError:           errMsg,
		ConsecutiveFailures: m.consecutiveFailures.Load(),
		ConsecutiveSuccess:  m.consecutiveSuccesses.Load(),
		LastSuccessAt:       unixNano(m.lastSuccessfulRun.Load()),
		TotalRuns:           m.totalRuns.Load(),
	}
}

func (m *maintenanceStats) record(result, message string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	now := time.Now()
	m.lastStatus.Store(result)
	m.lastError.Store(message)
	m.lastRun.Store(now.UnixNano())
	m.lastDuration.Store(int64(duration))
	m.totalRuns.Add(1)

	switch result {
	case "success":
		m.consecutiveFailures.Store(0)
		m.consecutiveSuccesses.Add(1)
		m.lastSuccessfulRun.Store(now.UnixNano())
	default:
		m.consecutiveFailures.Add(1)
		m.consecutiveSuccesses.Store(0)
	}
}

func unixNano(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v)
}
