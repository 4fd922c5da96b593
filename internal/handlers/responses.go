package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lifelink/lifelink/internal/models"
	"github.com/lifelink/lifelink/internal/services"
	"github.com/lifelink/lifelink/pkg/response"
)

var (
	errAlertServiceRequired    = errors.New("handlers: alert service is required")
	errResponseServiceRequired = errors.New("handlers: response service is required")
)

// ResponseHandler exposes HTTP endpoints for the response lifecycle.
type ResponseHandler struct {
	responses *services.ResponseService
}

// NewResponseHandler constructs a response handler.
func NewResponseHandler(responses *services.ResponseService) (*ResponseHandler, error) {
	if responses == nil {
		return nil, errResponseServiceRequired
	}
	return &ResponseHandler{responses: responses}, nil
}

// Record registers a donor's interest in an alert.
func (h *ResponseHandler) Record(c *gin.Context) {
	var payload struct {
		DonorID string `json:"donor_id" validate:"required"`
		Notes   string `json:"notes"`
	}
	if !bindAndValidate(c, &payload) {
		return
	}

	dto, err := h.responses.Record(requestContext(c), strings.TrimSpace(c.Param("id")), payload.DonorID, payload.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, dto)
}

// Manage applies a lifecycle action (confirm, accept, reject, hold, complete)
// to a donor's response.
func (h *ResponseHandler) Manage(c *gin.Context) {
	var payload struct {
		Action string `json:"action" validate:"required"`
		Notes  string `json:"notes"`
	}
	if !bindAndValidate(c, &payload) {
		return
	}

	err := h.responses.Manage(
		requestContext(c),
		actorID(c),
		strings.TrimSpace(c.Param("id")),
		strings.TrimSpace(c.Param("donorID")),
		services.ResponseAction(payload.Action),
		payload.Notes,
	)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"updated": true})
}

// Unavailable marks a donor as unable to donate and triggers the replacement
// search or escalation.
func (h *ResponseHandler) Unavailable(c *gin.Context) {
	var payload struct {
		Reason string `json:"reason" validate:"required"`
		Notes  string `json:"notes"`
	}
	if !bindAndValidate(c, &payload) {
		return
	}

	result, err := h.responses.HandleUnavailability(
		requestContext(c),
		strings.TrimSpace(c.Param("id")),
		strings.TrimSpace(c.Param("donorID")),
		models.UnavailabilityReason(payload.Reason),
		payload.Notes,
	)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// List returns every response on an alert, ranked.
func (h *ResponseHandler) List(c *gin.Context) {
	listed, err := h.responses.ListByAlert(requestContext(c), strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, listed)
}

// actorID identifies the caller for authorization decisions. Deployments
// terminate authentication upstream and forward the identity in a header.
func actorID(c *gin.Context) string {
	if actor := strings.TrimSpace(c.GetHeader("X-Actor-ID")); actor != "" {
		return actor
	}
	return "anonymous"
}
