package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lifelink/lifelink/internal/models"
	apperrors "github.com/lifelink/lifelink/pkg/errors"
)

// NotificationDTO represents the API-friendly notification payload.
type NotificationDTO struct {
	ID            string         `json:"id"`
	RecipientID   string         `json:"recipient_id"`
	RecipientType string         `json:"recipient_type"`
	Type          string         `json:"type"`
	Title         string         `json:"title"`
	Message       string         `json:"message"`
	Severity      string         `json:"severity"`
	AlertID       string         `json:"alert_id,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	IsRead        bool           `json:"is_read"`
	CreatedAt     time.Time      `json:"created_at"`
	ReadAt        *time.Time     `json:"read_at,omitempty"`
}

// ListNotificationsInput defines filters for querying notifications.
type ListNotificationsInput struct {
	RecipientID string
	Limit       int
	Offset      int
}

// NotificationService persists in-app notifications and forwards each event
// to the dispatcher collaborator. Delivery transport is out of scope here.
type NotificationService struct {
	db         *gorm.DB
	dispatcher Dispatcher
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(db *gorm.DB, dispatcher Dispatcher) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	return &NotificationService{db: db, dispatcher: dispatcher}, nil
}

// Notify persists the event and hands it to the dispatcher. Dispatch failures
// never fail the triggering operation.
func (s *NotificationService) Notify(ctx context.Context, event NotificationEvent) error {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(event.RecipientID) == "" {
		return errors.New("notification service: recipient id is required")
	}

	severity := event.Severity
	if severity == "" {
		severity = "info"
	}

	record := models.Notification{
		RecipientID:   event.RecipientID,
		RecipientType: event.RecipientType,
		Type:          event.Type,
		Title:         event.Title,
		Message:       event.Message,
		Severity:      severity,
		AlertID:       event.AlertID,
	}

	if len(event.Metadata) > 0 {
		raw, err := json.Marshal(event.Metadata)
		if err != nil {
			return apperrors.Wrap(err, "encode notification metadata")
		}
		record.Metadata = datatypes.JSON(raw)
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return apperrors.Wrap(err, "persist notification")
	}

	if s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, event)
	}
	return nil
}

// ListForRecipient returns notifications for a donor or hospital, newest first.
func (s *NotificationService) ListForRecipient(ctx context.Context, input ListNotificationsInput) ([]NotificationDTO, error) {
	ctx = ensureContext(ctx)
	recipientID := strings.TrimSpace(input.RecipientID)
	if recipientID == "" {
		return nil, errors.New("notification service: recipient id is required")
	}

	limit := input.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	var records []models.Notification
	err := s.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC").
		Limit(limit).
		Offset(input.Offset).
		Find(&records).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "list notifications")
	}

	dtos := make([]NotificationDTO, 0, len(records))
	for i := range records {
		dtos = append(dtos, notificationToDTO(&records[i]))
	}
	return dtos, nil
}

// MarkRead flags a notification as read for its recipient.
func (s *NotificationService) MarkRead(ctx context.Context, recipientID, notificationID string) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)

	var record models.Notification
	err := s.db.WithContext(ctx).
		Take(&record, "id = ? AND recipient_id = ?", notificationID, recipientID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("notification not found")
		}
		return nil, apperrors.Wrap(err, "load notification")
	}

	if !record.IsRead {
		now := time.Now().UTC()
		record.IsRead = true
		record.ReadAt = &now
		if err := s.db.WithContext(ctx).Model(&record).
			Updates(map[string]any{"is_read": true, "read_at": now}).Error; err != nil {
			return nil, apperrors.Wrap(err, "mark notification read")
		}
	}

	dto := notificationToDTO(&record)
	return &dto, nil
}

func notificationToDTO(record *models.Notification) NotificationDTO {
	dto := NotificationDTO{
		ID:            record.ID,
		RecipientID:   record.RecipientID,
		RecipientType: string(record.RecipientType),
		Type:          record.Type,
		Title:         record.Title,
		Message:       record.Message,
		Severity:      record.Severity,
		AlertID:       record.AlertID,
		IsRead:        record.IsRead,
		CreatedAt:     record.CreatedAt,
		ReadAt:        record.ReadAt,
	}
	if len(record.Metadata) > 0 {
		_ = json.Unmarshal(record.Metadata, &dto.Metadata)
	}
	return dto
}
