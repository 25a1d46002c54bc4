package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/hearthly/hearth/internal/api"
	"github.com/hearthly/hearth/internal/app"
	iauth "github.com/hearthly/hearth/internal/auth"
	"github.com/hearthly/hearth/internal/database"
	"github.com/hearthly/hearth/internal/middleware"
	"github.com/hearthly/hearth/internal/monitoring"
	"github.com/hearthly/hearth/internal/monitoring/checks"
	"github.com/hearthly/hearth/internal/realtime"
	"github.com/hearthly/hearth/pkg/logger"
)

const databaseCheckTimeout = 2 * time.Second

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB        *gorm.DB
	Household string
	Hub       *realtime.Hub
	Monitor   *monitoring.Module
	Router    *gin.Engine
}

// bootstrapRuntime opens the database, resolves the household identity and builds the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, generated map[string]bool, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.Monitoring.Prometheus.Enabled || cfg.Monitoring.Health.Enabled {
		if stack.Monitor, err = monitoring.NewModule(monitoring.Options{}); err != nil {
			return nil, fmt.Errorf("initialise monitoring: %w", err)
		}
		monitoring.SetModule(stack.Monitor)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	var jwtSvc *iauth.JWTService
	stack.Household, jwtSvc, err = householdIdentity(ctx, stack.DB, cfg, generated)
	if err != nil {
		return nil, err
	}
	if generated[database.JWTSecretSetting] {
		log.Info("auth.jwt.secret not configured, using the secret stored in the database")
	}

	if cfg.Realtime.Enabled {
		stack.Hub = realtime.NewHub()
	}

	if stack.Monitor != nil {
		health := stack.Monitor.Health()
		health.RegisterReadiness(checks.Database(stack.DB, databaseCheckTimeout))
		if stack.Hub != nil {
			health.RegisterLiveness(checks.Realtime(stack.Hub))
		}
	}

	stack.Router, err = api.NewRouter(stack.DB, jwtSvc, cfg, stack.Household, stack.Hub, middleware.NewMemoryRateStore())
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// householdIdentity resolves the household id and the token service signing for it.
func householdIdentity(ctx context.Context, db *gorm.DB, cfg *app.Config, generated map[string]bool) (string, *iauth.JWTService, error) {
	household, err := database.EnsureHouseholdID(ctx, db)
	if err != nil {
		return "", nil, fmt.Errorf("resolve household id: %w", err)
	}

	secret, err := database.EnsureJWTSecret(ctx, db, cfg.Auth.JWT.Secret, generated[database.JWTSecretSetting])
	if err != nil {
		return "", nil, fmt.Errorf("resolve token secret: %w", err)
	}
	cfg.Auth.JWT.Secret = secret

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return "", nil, fmt.Errorf("initialise jwt service: %w", err)
	}
	return household, jwtSvc, nil
}

// Shutdown releases resources.
func (s *runtimeStack) Shutdown(log *zap.Logger) {
	if s == nil {
		return
	}
	if s.Monitor != nil {
		monitoring.SetModule(nil)
	}
	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		dbCfg.Host = strings.TrimSpace(cfg.Database.Postgres.Host)
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.Postgres.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.Postgres.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.Postgres.Password)
	case "mysql":
		dbCfg.Host = strings.TrimSpace(cfg.Database.MySQL.Host)
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.MySQL.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.MySQL.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.MySQL.Password)
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if err := database.Close(db); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
