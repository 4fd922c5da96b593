package models

import (
	"time"

	"gorm.io/datatypes"
)

// HealthStatus captures a donor's self-reported fitness to donate.
type HealthStatus string

const (
	HealthExcellent  HealthStatus = "excellent"
	HealthGood       HealthStatus = "good"
	HealthFair       HealthStatus = "fair"
	HealthRestricted HealthStatus = "restricted"
)

// HealthPriority orders health statuses for ranking tie-breaks; higher is better.
func HealthPriority(status HealthStatus) int {
	switch status {
	case HealthExcellent:
		return 4
	case HealthGood:
		return 3
	case HealthFair:
		return 2
	case HealthRestricted:
		return 1
	default:
		return 0
	}
}

// MinDonationInterval is the minimum gap between two whole-blood donations.
const MinDonationInterval = 56 * 24 * time.Hour

// Donor is a registered blood donor. Registration itself is owned by the
// donor-directory collaborator; the matching core only writes back the
// availability flag and the rolling performance averages.
type Donor struct {
	BaseModel

	Name      string `gorm:"type:varchar(255);not null" json:"name"`
	BloodType string `gorm:"type:varchar(8);not null;index" json:"blood_type"`

	Location  string   `gorm:"type:text" json:"location"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	Available     bool         `gorm:"not null;default:true;index" json:"available"`
	HealthStatus  HealthStatus `gorm:"type:varchar(16)" json:"health_status"`
	EmergencyOnly bool         `gorm:"not null;default:false" json:"emergency_only"`

	// Rolling performance feedback maintained by the response lifecycle.
	AvgResponseMinutes float64 `gorm:"not null;default:0" json:"avg_response_minutes"`
	SuccessRate        float64 `gorm:"not null;default:0" json:"success_rate"`

	LastDonationAt *time.Time `json:"last_donation_at,omitempty"`

	ContactNumber string `gorm:"type:varchar(32)" json:"contact_number"`
}

// HasCoordinates reports whether the donor carries a usable coordinate pair.
func (d *Donor) HasCoordinates() bool {
	return d.Latitude != nil && d.Longitude != nil
}

// DonorVerification is the self-reported screening record attached to a donor.
// When present, its donation date overrides the donor's own field.
type DonorVerification struct {
	BaseModel

	DonorID          string         `gorm:"type:uuid;not null;uniqueIndex" json:"donor_id"`
	HealthConditions datatypes.JSON `json:"health_conditions"`
	LastDonationDate *time.Time     `json:"last_donation_date,omitempty"`
	Verified         bool           `gorm:"not null;default:false" json:"verified"`
}
