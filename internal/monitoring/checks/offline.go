package checks

import (
	"context"
	"fmt"

	"github.com/hearthly/hearth/internal/monitoring"
)

// OfflineQuota mirrors the quota report of the offline store.
type OfflineQuota struct {
	Used      int64
	Quota     int64
	Available bool
	Supported bool
}

// OfflineInspector exposes whether the offline store persists and how full it is.
type OfflineInspector interface {
	Persistent() bool
	CheckQuota(ctx context.Context) (OfflineQuota, error)
}

// Offline reports memory-only mode as degraded, and a store past its soft limit likewise.
func Offline(inspector OfflineInspector) monitoring.Check {
	return monitoring.NewCheck("offline_store", func(ctx context.Context) monitoring.ProbeResult {
		if inspector == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "offline store not configured"}
		}
		if !inspector.Persistent() {
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "running without persistent storage"}
		}

		quota, err := inspector.CheckQuota(ctx)
		if err != nil {
			return monitoring.ResultFromError("offline_store", err, 0)
		}
		if !quota.Supported {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "usage not reported"}
		}

		details := fmt.Sprintf("%d of %d bytes used", quota.Used, quota.Quota)
		if !quota.Available {
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: details}
		}
		return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: details}
	})
}
