package monitoring

import "time"

// Summary surfaces aggregated monitoring data for the status views of both binaries.
type Summary struct {
	GeneratedAt  time.Time           `json:"generated_at"`
	Sync         SyncSummary         `json:"sync"`
	Cache        CacheSummary        `json:"cache"`
	Connectivity ConnectivitySummary `json:"connectivity"`
	Realtime     RealtimeSummary     `json:"realtime"`
	Maintenance  MaintenanceSummary  `json:"maintenance"`
}

type SyncSummary struct {
	Passes     uint64    `json:"passes"`
	Applied    uint64    `json:"applied"`
	Failed     uint64    `json:"failed"`
	Conflicts  uint64    `json:"conflicts"`
	LastResult string    `json:"last_result,omitempty"`
	LastPassAt time.Time `json:"last_pass_at"`
	Pending    int64     `json:"pending"`
	Retrying   int64     `json:"retrying"`
	Stalled    int64     `json:"stalled"`
}

type CacheSummary struct {
	Writes        uint64 `json:"writes"`
	QuotaExceeded uint64 `json:"quota_exceeded"`
	Evictions     uint64 `json:"evictions"`
	UsageBytes    int64  `json:"usage_bytes"`
	QuotaBytes    int64  `json:"quota_bytes"`
}

type ConnectivitySummary struct {
	Online    bool      `json:"online"`
	ChangedAt time.Time `json:"changed_at"`
}

type FailureRecord struct {
	Stream   string    `json:"stream"`
	Type     string    `json:"type"`
	Message  string    `json:"message"`
	Occurred time.Time `json:"occurred_at"`
}

type RealtimeSummary struct {
	ActiveConnections int64          `json:"active_connections"`
	Broadcasts        uint64         `json:"broadcasts"`
	Failures          uint64         `json:"failures"`
	LastFailure       *FailureRecord `json:"last_failure,omitempty"`
}

type MaintenanceSummary struct {
	Jobs []MaintenanceJobSummary `json:"jobs"`
}

type MaintenanceJobSummary struct {
	Job                 string        `json:"job"`
	LastStatus          string        `json:"last_status"`
	LastRunAt           time.Time     `json:"last_run_at"`
	LastDuration        time.Duration `json:"last_duration"`
	LastError           string        `json:"last_error,omitempty"`
	ConsecutiveFailures uint64        `json:"consecutive_failures"`
	ConsecutiveSuccess  uint64        `json:"consecutive_success"`
	LastSuccessAt       time.Time     `json:"last_success_at"`
	TotalRuns           uint64        `json:"total_runs"`
}

// Snapshot returns a point-in-time summary from the current module when configured.
func Snapshot() Summary {
	if module := ensureModule(); module != nil && module.stats != nil {
		return module.stats.summary()
	}
	return Summary{GeneratedAt: time.Now()}
}
