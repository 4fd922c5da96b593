package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lifelink/lifelink/internal/services"
	appErrors "github.com/lifelink/lifelink/pkg/errors"
	"github.com/lifelink/lifelink/pkg/response"
)

var errNotificationServiceRequired = errors.New("handlers: notification service is required")

// NotificationHandler exposes HTTP endpoints for in-app notifications.
type NotificationHandler struct {
	notifications *services.NotificationService
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(notifications *services.NotificationService) (*NotificationHandler, error) {
	if notifications == nil {
		return nil, errNotificationServiceRequired
	}
	return &NotificationHandler{notifications: notifications}, nil
}

// List returns notifications for a donor or hospital, newest first.
func (h *NotificationHandler) List(c *gin.Context) {
	recipientID := strings.TrimSpace(c.Query("recipient_id"))
	if recipientID == "" {
		response.Error(c, appErrors.NewBadRequest("recipient_id is required"))
		return
	}

	items, err := h.notifications.ListForRecipient(requestContext(c), services.ListNotificationsInput{
		RecipientID: recipientID,
		Limit:       parseIntQuery(c, "limit", 25),
		Offset:      parseIntQuery(c, "offset", 0),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, items)
}

// MarkRead flags a notification as read for its recipient.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	recipientID := strings.TrimSpace(c.Query("recipient_id"))
	if recipientID == "" {
		response.Error(c, appErrors.NewBadRequest("recipient_id is required"))
		return
	}

	dto, err := h.notifications.MarkRead(requestContext(c), recipientID, strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, dto)
}
