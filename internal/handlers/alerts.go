package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lifelink/lifelink/internal/models"
	"github.com/lifelink/lifelink/internal/services"
	"github.com/lifelink/lifelink/pkg/response"
)

// AlertHandler exposes HTTP endpoints for emergency blood alerts.
type AlertHandler struct {
	alerts *services.AlertService
}

// NewAlertHandler constructs an alert handler.
func NewAlertHandler(alerts *services.AlertService) (*AlertHandler, error) {
	if alerts == nil {
		return nil, errAlertServiceRequired
	}
	return &AlertHandler{alerts: alerts}, nil
}

// Create raises a new alert and runs the initial matching pass.
func (h *AlertHandler) Create(c *gin.Context) {
	var payload struct {
		HospitalID     string  `json:"hospital_id" validate:"required"`
		BloodType      string  `json:"blood_type" validate:"required"`
		Urgency        string  `json:"urgency" validate:"required"`
		UnitsNeeded    int     `json:"units_needed" validate:"required,min=1"`
		Location       string  `json:"location"`
		TargetArea     string  `json:"target_area"`
		RadiusKm       float64 `json:"radius_km"`
		Description    string  `json:"description"`
		ContactNumber  string  `json:"contact_number"`
		ExpiresInHours float64 `json:"expires_in_hours"`
	}
	if !bindAndValidate(c, &payload) {
		return
	}

	dto, err := h.alerts.Create(requestContext(c), services.CreateAlertInput{
		HospitalID:     payload.HospitalID,
		BloodType:      payload.BloodType,
		Urgency:        models.Urgency(payload.Urgency),
		UnitsNeeded:    payload.UnitsNeeded,
		Location:       payload.Location,
		TargetArea:     payload.TargetArea,
		RadiusKm:       payload.RadiusKm,
		Description:    payload.Description,
		ContactNumber:  payload.ContactNumber,
		ExpiresInHours: payload.ExpiresInHours,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, dto)
}

// Get returns one alert.
func (h *AlertHandler) Get(c *gin.Context) {
	dto, err := h.alerts.Get(requestContext(c), strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, dto)
}

// List returns alerts, highest priority first.
func (h *AlertHandler) List(c *gin.Context) {
	result, err := h.alerts.List(requestContext(c), services.ListAlertsOptions{
		HospitalID: strings.TrimSpace(c.Query("hospital_id")),
		Status:     models.AlertStatus(strings.TrimSpace(c.Query("status"))),
		Page:       parseIntQuery(c, "page", 1),
		PerPage:    parseIntQuery(c, "per_page", 20),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	totalPages := int(result.Total) / result.PerPage
	if int(result.Total)%result.PerPage != 0 {
		totalPages++
	}
	response.SuccessWithMeta(c, http.StatusOK, result.Alerts, &response.Meta{
		Page:       result.Page,
		PerPage:    result.PerPage,
		Total:      int(result.Total),
		TotalPages: totalPages,
	})
}

// Delete removes an alert and its responses.
func (h *AlertHandler) Delete(c *gin.Context) {
	err := h.alerts.Delete(requestContext(c), actorID(c), strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// ExtendExpiry pushes the alert deadline out.
func (h *AlertHandler) ExtendExpiry(c *gin.Context) {
	var payload struct {
		Hours float64 `json:"hours" validate:"required,gt=0"`
	}
	if !bindAndValidate(c, &payload) {
		return
	}

	dto, err := h.alerts.ExtendExpiry(requestContext(c), actorID(c), strings.TrimSpace(c.Param("id")), payload.Hours)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, dto)
}

// EligibleDonors returns ranked donor recommendations for the alert.
func (h *AlertHandler) EligibleDonors(c *gin.Context) {
	matches, err := h.alerts.FindEligibleDonors(
		requestContext(c),
		strings.TrimSpace(c.Param("id")),
		parseIntQuery(c, "limit", 0),
	)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, matches)
}

// TopDonors returns the best three donors for the alert.
func (h *AlertHandler) TopDonors(c *gin.Context) {
	matches, err := h.alerts.GetTopRecommendedDonors(requestContext(c), strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, matches)
}

// RefreshRankings re-scores every responder on the alert.
func (h *AlertHandler) RefreshRankings(c *gin.Context) {
	if err := h.alerts.RefreshRankings(requestContext(c), strings.TrimSpace(c.Param("id"))); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"refreshed": true})
}
