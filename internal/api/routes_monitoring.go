package api

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hearthly/hearth/internal/app"
	iauth "github.com/hearthly/hearth/internal/auth"
	"github.com/hearthly/hearth/internal/handlers"
	"github.com/hearthly/hearth/internal/middleware"
	"github.com/hearthly/hearth/internal/monitoring"
)

func registerMonitoringRoutes(api *gin.RouterGroup, handler *handlers.MonitoringHandler) {
	if api == nil || handler == nil {
		return
	}

	group := api.Group("/monitoring")
	group.GET("/summary", middleware.RequireRole(iauth.RoleParent, iauth.RoleDevice), handler.Summary)
}

func registerMetricsRoute(r *gin.Engine, cfg *app.Config, mon *monitoring.Module) {
	if mon == nil || !cfg.Monitoring.Prometheus.Enabled {
		return
	}
	endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
	if endpoint == "" {
		endpoint = "/metrics"
	}
	r.GET(endpoint, gin.WrapH(mon.Handler()))
}
