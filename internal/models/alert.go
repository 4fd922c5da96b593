package models

import (
	"time"

	"gorm.io/datatypes"
)

// Urgency classifies how quickly an alert must be fulfilled.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyNormal   Urgency = "normal"
)

var validUrgencies = map[Urgency]struct{}{
	UrgencyCritical: {},
	UrgencyUrgent:   {},
	UrgencyNormal:   {},
}

// Valid reports whether the urgency is one of the supported levels.
func (u Urgency) Valid() bool {
	_, ok := validUrgencies[u]
	return ok
}

// AlertStatus enumerates the lifecycle states of an alert.
type AlertStatus string

const (
	AlertStatusActive         AlertStatus = "active"
	AlertStatusDonorConfirmed AlertStatus = "donor_confirmed"
	AlertStatusFulfilled      AlertStatus = "fulfilled"
	AlertStatusCompleted      AlertStatus = "completed"
	AlertStatusExpired        AlertStatus = "expired"
	AlertStatusCancelled      AlertStatus = "cancelled"
	AlertStatusEscalated      AlertStatus = "escalated"
)

// EscalationLevelMax is assigned when a replacement search is exhausted and a
// human has to take over.
const EscalationLevelMax = 3

// Alert is a hospital's open request for blood of a given type, urgency and quantity.
type Alert struct {
	BaseModel

	HospitalID    string  `gorm:"type:uuid;not null;index" json:"hospital_id"`
	BloodType     string  `gorm:"type:varchar(8);not null;index" json:"blood_type"`
	Urgency       Urgency `gorm:"type:varchar(16);not null;index" json:"urgency"`
	UnitsNeeded   int     `gorm:"not null;default:1" json:"units_needed"`
	Location      string  `gorm:"type:text" json:"location"`
	TargetArea    string  `gorm:"type:text" json:"target_area,omitempty"`
	RadiusKm      float64 `json:"radius_km,omitempty"`
	Description   string  `gorm:"type:text" json:"description"`
	ContactNumber string  `gorm:"type:varchar(32)" json:"contact_number"`

	Status    AlertStatus `gorm:"type:varchar(32);not null;default:'active';index" json:"status"`
	ExpiresAt time.Time   `gorm:"not null;index" json:"expires_at"`

	// Mutable matching state maintained by the ranking engine.
	PriorityScore      int            `gorm:"not null;default:0" json:"priority_score"`
	MatchedDonors      datatypes.JSON `json:"matched_donors"`
	LastMatchingUpdate *time.Time     `json:"last_matching_update,omitempty"`

	AcceptedDonorID *string `gorm:"type:uuid;index" json:"accepted_donor_id,omitempty"`

	EscalationLevel  int        `gorm:"not null;default:0" json:"escalation_level"`
	EscalationReason string     `gorm:"type:text" json:"escalation_reason,omitempty"`
	EscalatedAt      *time.Time `json:"escalated_at,omitempty"`

	Responses []Response `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// MatchedDonor is one entry of an alert's matched donor shortlist, persisted
// as JSON on the alert row.
type MatchedDonor struct {
	DonorID    string    `json:"donor_id"`
	MatchScore float64   `json:"match_score"`
	FinalScore float64   `json:"final_score"`
	Rank       int       `json:"rank"`
	MatchedAt  time.Time `json:"matched_at"`
}

// Open reports whether the alert still accepts donor responses.
func (a *Alert) Open() bool {
	return a.Status == AlertStatusActive || a.Status == AlertStatusDonorConfirmed
}

// Terminal reports whether the alert reached a state no transition leaves.
func (a *Alert) Terminal() bool {
	switch a.Status {
	case AlertStatusCompleted, AlertStatusExpired, AlertStatusCancelled, AlertStatusEscalated:
		return true
	}
	return false
}
