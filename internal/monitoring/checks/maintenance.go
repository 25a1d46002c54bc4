package checks

import (
	"context"
	"strings"
	"time"

	"github.com/hearthly/hearth/internal/monitoring"
)

const defaultMaintenanceMaxAge = 30 * time.Minute

// Maintenance verifies that the scheduled sync jobs (drain, probe, refresh) keep
// running. A job whose last run is older than maxAge degrades the report.
func Maintenance(maxAge time.Duration) monitoring.Check {
	if maxAge <= 0 {
		maxAge = defaultMaintenanceMaxAge
	}

	return monitoring.NewCheck("maintenance", func(ctx context.Context) monitoring.ProbeResult {
		summary := monitoring.Snapshot()
		if len(summary.Maintenance.Jobs) == 0 {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "no scheduled jobs"}
		}

		status := monitoring.StatusUp
		var notes []string
		for _, job := range summary.Maintenance.Jobs {
			switch {
			case job.TotalRuns == 0:
				notes = append(notes, job.Job+": pending first run")
			case job.ConsecutiveFailures >= 3:
				status = worstStatus(status, monitoring.StatusDown)
				notes = append(notes, job.Job+": failing ("+job.LastError+")")
			case job.ConsecutiveFailures > 0:
				status = worstStatus(status, monitoring.StatusDegraded)
				notes = append(notes, job.Job+": last run failed")
			}

			if !job.LastRunAt.IsZero() && summary.GeneratedAt.Sub(job.LastRunAt) > maxAge {
				status = worstStatus(status, monitoring.StatusDegraded)
				notes = append(notes, job.Job+": stale since "+job.LastRunAt.UTC().Format(time.RFC3339))
			}
		}

		return monitoring.ProbeResult{Status: status, Details: strings.Join(notes, "; ")}
	})
}

func worstStatus(current, candidate monitoring.ProbeStatus) monitoring.ProbeStatus {
	if current == monitoring.StatusDown || candidate == monitoring.StatusDown {
		return monitoring.StatusDown
	}
	if current == monitoring.StatusDegraded || candidate == monitoring.StatusDegraded {
		return monitoring.StatusDegraded
	}
	return monitoring.StatusUp
}
