package api

import (
	"github.com/gin-gonic/gin"

	"github.com/lifelink/lifelink/internal/handlers"
)

func registerAlertRoutes(api *gin.RouterGroup, alerts *handlers.AlertHandler, responses *handlers.ResponseHandler, analytics *handlers.AnalyticsHandler) {
	group := api.Group("/alerts")
	{
		group.GET("", alerts.List)
		group.POST("", alerts.Create)
		group.GET("/:id", alerts.Get)
		group.DELETE("/:id", alerts.Delete)
		group.POST("/:id/extend", alerts.ExtendExpiry)

		group.GET("/:id/donors", alerts.EligibleDonors)
		group.GET("/:id/donors/top", alerts.TopDonors)
		group.POST("/:id/rankings/refresh", alerts.RefreshRankings)

		group.GET("/:id/responses", responses.List)
		group.POST("/:id/responses", responses.Record)
		group.POST("/:id/responses/:donorID/manage", responses.Manage)
		group.POST("/:id/responses/:donorID/unavailable", responses.Unavailable)

		group.GET("/:id/analytics/responses", analytics.Responses)
		group.GET("/:id/analytics/matching", analytics.Matching)
	}
}
