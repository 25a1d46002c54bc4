package api

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/hearthly/hearth/internal/app"
	iauth "github.com/hearthly/hearth/internal/auth"
	"github.com/hearthly/hearth/internal/handlers"
	"github.com/hearthly/hearth/internal/middleware"
	"github.com/hearthly/hearth/internal/monitoring"
	"github.com/hearthly/hearth/internal/realtime"
	"github.com/hearthly/hearth/internal/services"
)

const (
	tokenRateLimit  = 10
	tokenRateWindow = time.Minute
)

// NewRouter builds the Gin engine, wires middleware and registers the household API.
// hub may be nil when the realtime feed is disabled.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, household string, hub *realtime.Hub, rateStore middleware.RateStore) (*gin.Engine, error) {
	if db == nil {
		return nil, errors.New("database handle must be provided")
	}
	if jwt == nil {
		return nil, errors.New("jwt service must be provided")
	}
	if cfg == nil {
		return nil, errors.New("config must be provided")
	}
	if strings.TrimSpace(household) == "" {
		return nil, errors.New("household id must be provided")
	}

	var publisher services.ChangePublisher
	if hub != nil {
		publisher = hub
	}

	chores, err := services.NewChoreService(db, publisher)
	if err != nil {
		return nil, err
	}
	family, err := services.NewFamilyService(db, publisher)
	if err != nil {
		return nil, err
	}
	shopping, err := services.NewShoppingService(db, publisher)
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())

	mon := monitoring.CurrentModule()
	registerHealthRoutes(r, cfg, mon, household)
	registerMetricsRoute(r, cfg, mon)

	requireAuth := middleware.Auth(jwt, household)

	authHandler := handlers.NewAuthHandler(family, jwt, household, cfg.Auth.JWT.TTL)
	r.POST("/api/auth/token", middleware.RateLimit(rateStore, tokenRateLimit, tokenRateWindow), authHandler.Token)

	api := r.Group("/api")
	api.Use(requireAuth)
	api.GET("/auth/me", authHandler.Me)

	registerChoreRoutes(api, handlers.NewChoreHandler(chores))
	registerFamilyRoutes(api, handlers.NewFamilyHandler(family))
	registerShoppingRoutes(api, handlers.NewShoppingHandler(shopping))
	registerMonitoringRoutes(api, handlers.NewMonitoringHandler(mon, cfg))

	if cfg.Realtime.Enabled && hub != nil {
		r.GET("/ws", requireAuth, handlers.NewRealtimeHandler(hub).Stream)
	}

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
