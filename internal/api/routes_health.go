package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hearthly/hearth/internal/app"
	"github.com/hearthly/hearth/internal/handlers"
	"github.com/hearthly/hearth/internal/monitoring"
)

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, mon *monitoring.Module, household string) {
	if !cfg.Monitoring.Health.Enabled || mon == nil || mon.Health() == nil {
		static := handlers.Health(household)
		r.GET("/health", static)
		r.GET("/health/live", static)
		r.GET("/health/ready", static)
		return
	}

	manager := mon.Health()

	r.GET("/health", func(c *gin.Context) {
		report := manager.EvaluateReadiness(c.Request.Context())
		status := http.StatusOK
		if !report.Success {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"success":    report.Success,
			"status":     report.Status,
			"household":  household,
			"checked_at": time.Now().UTC(),
		})
	})

	r.GET("/health/live", func(c *gin.Context) {
		writeHealthReport(c, manager.EvaluateLiveness(c.Request.Context()))
	})

	r.GET("/health/ready", func(c *gin.Context) {
		writeHealthReport(c, manager.EvaluateReadiness(c.Request.Context()))
	})
}

func writeHealthReport(c *gin.Context, report monitoring.HealthReport) {
	status := http.StatusOK
	if !report.Success {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"success":    report.Success,
		"status":     report.Status,
		"checks":     report.Checks,
		"checked_at": time.Now().UTC(),
	})
}
