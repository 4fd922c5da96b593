package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lifelink/lifelink/internal/services"
	"github.com/lifelink/lifelink/pkg/response"
)

var errAnalyticsServiceRequired = errors.New("handlers: analytics service is required")

// AnalyticsHandler exposes read-only rollups for an alert.
type AnalyticsHandler struct {
	analytics *services.AnalyticsService
}

// NewAnalyticsHandler constructs an analytics handler.
func NewAnalyticsHandler(analytics *services.AnalyticsService) (*AnalyticsHandler, error) {
	if analytics == nil {
		return nil, errAnalyticsServiceRequired
	}
	return &AnalyticsHandler{analytics: analytics}, nil
}

// Responses returns the response rollup for an alert.
func (h *AnalyticsHandler) Responses(c *gin.Context) {
	rollup, err := h.analytics.ResponseRollup(requestContext(c), strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, rollup)
}

// Matching returns the matching rollup for an alert.
func (h *AnalyticsHandler) Matching(c *gin.Context) {
	rollup, err := h.analytics.MatchingRollup(requestContext(c), strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, rollup)
}
