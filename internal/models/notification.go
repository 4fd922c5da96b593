package models

import (
	"time"

	"gorm.io/datatypes"
)

// RecipientType distinguishes who a notification is addressed to.
type RecipientType string

const (
	RecipientDonor    RecipientType = "donor"
	RecipientHospital RecipientType = "hospital"
)

// Notification represents an in-app notification for a donor or hospital.
// Delivery over push/SMS/email is owned by the dispatcher collaborator; these
// rows exist so recipients can poll missed events.
type Notification struct {
	BaseModel

	RecipientID   string        `gorm:"type:uuid;not null;index" json:"recipient_id"`
	RecipientType RecipientType `gorm:"type:varchar(16);not null" json:"recipient_type"`
	Type          string        `gorm:"type:varchar(64);not null" json:"type"`
	Title         string        `gorm:"type:varchar(255);not null" json:"title"`
	Message       string        `gorm:"type:text" json:"message"`
	Severity      string        `gorm:"type:varchar(32);default:'info'" json:"severity"`
	AlertID       string        `gorm:"type:uuid;index" json:"alert_id,omitempty"`
	Metadata      datatypes.JSON `json:"metadata"`

	IsRead bool       `gorm:"default:false;index" json:"is_read"`
	ReadAt *time.Time `json:"read_at"`
}
