package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lifelink/lifelink/internal/api"
	"github.com/lifelink/lifelink/internal/app"
	"github.com/lifelink/lifelink/internal/app/maintenance"
	"github.com/lifelink/lifelink/internal/database"
	"github.com/lifelink/lifelink/internal/services"
	"github.com/lifelink/lifelink/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB      *gorm.DB
	Alerts  *services.AlertService
	Sweeper *maintenance.Sweeper
	Router  *gin.Engine
}

// bootstrapRuntime initialises the database, the service layer, the
// maintenance sweeper, and the HTTP router.
func bootstrapRuntime(cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	donors, err := services.NewGormDonorDirectory(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise donor directory: %w", err)
	}
	hospitals, err := services.NewGormHospitalDirectory(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise hospital directory: %w", err)
	}

	var notifier *services.NotificationService
	if cfg.Features.Notifications.Enabled {
		notifier, err = services.NewNotificationService(stack.DB, services.NewLoggingDispatcher())
		if err != nil {
			return nil, fmt.Errorf("initialise notification service: %w", err)
		}
	} else {
		notifier, err = services.NewNotificationService(stack.DB, nil)
		if err != nil {
			return nil, fmt.Errorf("initialise notification service: %w", err)
		}
	}

	stack.Alerts, err = services.NewAlertService(stack.DB, donors, hospitals, notifier,
		services.WithTopN(cfg.Matching.TopN))
	if err != nil {
		return nil, fmt.Errorf("initialise alert service: %w", err)
	}

	responses, err := services.NewResponseService(stack.DB, donors, hospitals, notifier)
	if err != nil {
		return nil, fmt.Errorf("initialise response service: %w", err)
	}

	analytics, err := services.NewAnalyticsService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise analytics service: %w", err)
	}

	if cfg.Maintenance.Enabled {
		stack.Sweeper = maintenance.NewSweeper(stack.Alerts,
			maintenance.WithExpirySchedule(cfg.Maintenance.ExpirySchedule),
			maintenance.WithRerankSchedule(cfg.Maintenance.RerankSchedule))
		if err := stack.Sweeper.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	stack.Router, err = api.NewRouter(stack.DB, api.Services{
		Alerts:        stack.Alerts,
		Responses:     responses,
		Analytics:     analytics,
		Notifications: notifier,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Sweeper != nil {
		stopCtx := s.Sweeper.Stop()
		if stopCtx != nil {
			ctx = stopCtx
		}
		if err := s.Sweeper.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown sweep failed", zap.Error(err))
		}
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

	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

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
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
