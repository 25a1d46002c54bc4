package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/hearthly/hearth/internal/monitoring"
)

// RealtimeObserver exposes the hub state needed to evaluate change-feed health.
type RealtimeObserver interface {
	ActiveConnections() int64
}

const realtimeFailureWindow = 5 * time.Minute

// Realtime degrades when the change feed recorded a delivery failure recently.
func Realtime(observer RealtimeObserver) monitoring.Check {
	return monitoring.NewCheck("realtime", func(ctx context.Context) monitoring.ProbeResult {
		if observer == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "realtime hub unavailable"}
		}

		snapshot := monitoring.Snapshot()
		details := fmt.Sprintf("%d connected", observer.ActiveConnections())
		if last := snapshot.Realtime.LastFailure; last != nil && snapshot.GeneratedAt.Sub(last.Occurred) < realtimeFailureWindow {
			return monitoring.ProbeResult{
				Status:  monitoring.StatusDegraded,
				Details: fmt.Sprintf("%s; %s failure on %s: %s", details, last.Type, last.Stream, last.Message),
			}
		}
		return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: details}
	})
}
