package matching

import (
	"math"

	"github.com/lifelink/lifelink/internal/models"
)

// NeutralHistoryScore is assumed for donors with no past responses.
const NeutralHistoryScore = 50.0

// HistoricalRecord pairs a past response with its alert. Records whose alert
// could not be resolved carry a nil Alert and are skipped.
type HistoricalRecord struct {
	Response *models.Response
	Alert    *models.Alert
}

// HistoricalScore derives a reliability score for a donor from past responses,
// relative to a target blood type and urgency. Each valid record contributes
// outcome points, speed points and affinity bonuses; the result is the average
// across valid records, or the neutral default with no history.
func HistoricalScore(records []HistoricalRecord, bloodType string, urgency models.Urgency) float64 {
	total := 0.0
	valid := 0

	for _, record := range records {
		if record.Response == nil || record.Alert == nil {
			continue
		}

		score := outcomePoints(record.Response.Status)
		score += math.Max(0, 20-record.Response.ResponseSpeedMinutes()/3)

		if record.Alert.BloodType == bloodType {
			score += 25
		}
		if record.Alert.Urgency == urgency {
			score += 25
		}

		total += score
		valid++
	}

	if valid == 0 {
		return NeutralHistoryScore
	}
	return total / float64(valid)
}

func outcomePoints(status models.ResponseStatus) float64 {
	switch status {
	case models.ResponseCompleted:
		return 30
	case models.ResponseConfirmed, models.ResponseAccepted:
		return 20
	case models.ResponseInterested:
		return 10
	default:
		return 0
	}
}

// Outcome describes a finished response for the incremental feedback update.
type Outcome struct {
	Status          models.ResponseStatus
	ResponseMinutes float64
}

// ApplyOutcome folds a response outcome into the donor's rolling averages.
// The response-time average is replaced by the midpoint of old and new, and
// the success rate is nudged by the outcome, clamped to [0,100]. The caller
// persists the donor afterwards, inside the same transaction as the
// triggering transition.
func ApplyOutcome(donor *models.Donor, outcome Outcome) {
	if donor == nil {
		return
	}

	if outcome.ResponseMinutes > 0 {
		if donor.AvgResponseMinutes == 0 {
			donor.AvgResponseMinutes = outcome.ResponseMinutes
		} else {
			donor.AvgResponseMinutes = (donor.AvgResponseMinutes + outcome.ResponseMinutes) / 2
		}
	}

	switch outcome.Status {
	case models.ResponseCompleted:
		donor.SuccessRate += 5
	case models.ResponseConfirmed, models.ResponseAccepted:
		donor.SuccessRate += 2
	case models.ResponseInterested:
		donor.SuccessRate -= 1
	}

	donor.SuccessRate = math.Min(100, math.Max(0, donor.SuccessRate))
}
