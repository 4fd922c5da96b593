package matching

import (
	"time"

	"github.com/lifelink/lifelink/internal/models"
)

// rareBloodTypes attract a priority bonus because the eligible pool is small.
var rareBloodTypes = map[string]struct{}{
	"AB-": {},
	"B-":  {},
	"AB+": {},
	"O-":  {},
}

// PriorityScore computes the alert-level priority, independent of any donor:
// an urgency base plus bonuses for imminent expiry, rare blood types and
// large unit counts. It is recomputed whenever the expiry is extended.
func PriorityScore(alert *models.Alert, now time.Time) int {
	score := urgencyBase(alert.Urgency)

	hoursLeft := alert.ExpiresAt.Sub(now).Hours()
	switch {
	case hoursLeft < 1:
		score += 50
	case hoursLeft < 3:
		score += 30
	case hoursLeft < 6:
		score += 15
	}

	if _, rare := rareBloodTypes[alert.BloodType]; rare {
		score += 20
	}

	switch {
	case alert.UnitsNeeded > 5:
		score += 25
	case alert.UnitsNeeded > 2:
		score += 15
	}

	return score
}

func urgencyBase(urgency models.Urgency) int {
	switch urgency {
	case models.UrgencyCritical:
		return 100
	case models.UrgencyUrgent:
		return 70
	default:
		return 30
	}
}
