package checks

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/hearthly/hearth/internal/monitoring"
)

const defaultDatabaseTimeout = 2 * time.Second

// Database returns a readiness probe that pings the household database and
// confirms the household identity has been seeded.
func Database(db *gorm.DB, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if db == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "database not configured"}
		}

		sqlDB, err := db.DB()
		if err != nil {
			return monitoring.ResultFromError("database", err, time.Since(start))
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout, defaultDatabaseTimeout))
		defer cancel()

		if err := sqlDB.PingContext(probeCtx); err != nil {
			return monitoring.ResultFromError("database", err, time.Since(start))
		}

		var seeded int64
		if err := db.WithContext(probeCtx).Table("system_settings").Where("setting_key = ?", "household.id").Count(&seeded).Error; err != nil {
			return monitoring.ResultFromError("database", err, time.Since(start))
		}
		if seeded == 0 {
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "household not initialised"}
		}

		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	})
}

func chooseTimeout(provided, fallback time.Duration) time.Duration {
	if provided <= 0 {
		return fallback
	}
	return provided
}
