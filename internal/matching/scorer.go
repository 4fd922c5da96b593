package matching

import (
	"math"

	"github.com/lifelink/lifelink/internal/models"
)

// ScoreBreakdown itemises the match score for one (donor, alert) pair. Every
// component is floored at zero, so the total is never negative.
type ScoreBreakdown struct {
	DistanceKm     float64 `json:"distance_km"`
	Distance       float64 `json:"distance_score"`
	Health         float64 `json:"health_score"`
	Availability   float64 `json:"availability_score"`
	ResponseTime   float64 `json:"response_time_score"`
	SuccessRate    float64 `json:"success_rate_score"`
	EmergencyBonus float64 `json:"emergency_bonus"`
	Total          float64 `json:"total"`
}

// Score computes the multi-factor compatibility score for a donor against an
// alert raised by a hospital. The function is pure: identical inputs always
// produce the identical breakdown.
func Score(donor *models.Donor, hospital *models.Hospital, alert *models.Alert) ScoreBreakdown {
	km := DistanceKm(DonorLocation(donor), HospitalLocation(hospital))

	breakdown := ScoreBreakdown{
		DistanceKm:   km,
		Distance:     math.Max(0, 30-km),
		Health:       healthComponent(donor.HealthStatus),
		ResponseTime: math.Max(0, 15-donor.AvgResponseMinutes/2),
		SuccessRate:  math.Min(donor.SuccessRate/10, 10),
	}

	if donor.Available {
		breakdown.Availability = 20
	}

	if alert.Urgency == models.UrgencyCritical && donor.EmergencyOnly {
		breakdown.EmergencyBonus = 10
	}

	breakdown.Total = breakdown.Distance +
		breakdown.Health +
		breakdown.Availability +
		breakdown.ResponseTime +
		breakdown.SuccessRate +
		breakdown.EmergencyBonus

	return breakdown
}

// healthComponent awards points for the donor's self-reported fitness.
// Unset statuses score the same as "fair".
func healthComponent(status models.HealthStatus) float64 {
	switch status {
	case models.HealthExcellent:
		return 25
	case models.HealthGood:
		return 20
	case models.HealthFair:
		return 15
	case models.HealthRestricted:
		return 5
	default:
		return 15
	}
}
