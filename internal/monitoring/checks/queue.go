package checks

import (
	"context"
	"fmt"

	"github.com/hearthly/hearth/internal/monitoring"
)

// QueueInspector reports mutation queue depth per lifecycle bucket.
type QueueInspector interface {
	Counts(ctx context.Context) (pending, failed, stalled int, err error)
}

// Queue degrades when queued changes stopped retrying and need manual attention.
func Queue(inspector QueueInspector) monitoring.Check {
	return monitoring.NewCheck("sync_queue", func(ctx context.Context) monitoring.ProbeResult {
		if inspector == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "queue not configured"}
		}
		pending, failed, stalled, err := inspector.Counts(ctx)
		if err != nil {
			return monitoring.ResultFromError("sync_queue", err, 0)
		}

		details := fmt.Sprintf("%d pending, %d retrying, %d stalled", pending, failed, stalled)
		if stalled > 0 {
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: details}
		}
		return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: details}
	})
}
