package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/lifelink/lifelink/internal/handlers"
	"github.com/lifelink/lifelink/internal/middleware"
	"github.com/lifelink/lifelink/internal/services"
)

// Services bundles the constructed service layer for route registration.
type Services struct {
	Alerts        *services.AlertService
	Responses     *services.ResponseService
	Analytics     *services.AnalyticsService
	Notifications *services.NotificationService
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(db *gorm.DB, svcs Services) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if svcs.Alerts == nil || svcs.Responses == nil || svcs.Analytics == nil || svcs.Notifications == nil {
		return nil, fmt.Errorf("all services must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())
	// Basic rate limiting: 100 requests/minute per IP+path
	r.Use(middleware.RateLimit(100, time.Minute))

	// Health endpoint (public)
	r.GET("/health", handlers.Health(db))

	alertHandler, err := handlers.NewAlertHandler(svcs.Alerts)
	if err != nil {
		return nil, err
	}
	responseHandler, err := handlers.NewResponseHandler(svcs.Responses)
	if err != nil {
		return nil, err
	}
	analyticsHandler, err := handlers.NewAnalyticsHandler(svcs.Analytics)
	if err != nil {
		return nil, err
	}
	notificationHandler, err := handlers.NewNotificationHandler(svcs.Notifications)
	if err != nil {
		return nil, err
	}

	api := r.Group("/api")
	registerAlertRoutes(api, alertHandler, responseHandler, analyticsHandler)
	registerNotificationRoutes(api, notificationHandler)

	// Metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
