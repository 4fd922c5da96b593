package matching

import (
	"math"
	"time"

	"github.com/lifelink/lifelink/internal/models"
)

// Estimator produces an ETA in minutes between two locations for an alert of
// the given urgency. Implementations may call a real routing provider; the
// heuristic below is the default when none is configured.
type Estimator interface {
	EstimateMinutes(from, to Location, urgency models.Urgency) int
}

// HeuristicEstimator approximates travel time as distance times two minutes
// per kilometre, adjusted for urgency and the current time of day. It is an
// estimator, not routed navigation.
type HeuristicEstimator struct {
	now func() time.Time
}

// HeuristicOption customises a HeuristicEstimator.
type HeuristicOption func(*HeuristicEstimator)

// WithNow overrides the clock used for the traffic adjustment, primarily for tests.
func WithNow(now func() time.Time) HeuristicOption {
	return func(e *HeuristicEstimator) {
		if now != nil {
			e.now = now
		}
	}
}

// NewHeuristicEstimator constructs the default travel estimator.
func NewHeuristicEstimator(opts ...HeuristicOption) *HeuristicEstimator {
	est := &HeuristicEstimator{now: time.Now}
	for _, opt := range opts {
		opt(est)
	}
	return est
}

const minutesPerKm = 2.0

// EstimateMinutes implements Estimator.
func (e *HeuristicEstimator) EstimateMinutes(from, to Location, urgency models.Urgency) int {
	minutes := DistanceKm(from, to) * minutesPerKm
	minutes *= urgencyMultiplier(urgency)
	minutes *= trafficMultiplier(e.now().Hour())

	if minutes <= 0 {
		return 0
	}
	return int(math.Round(minutes))
}

func urgencyMultiplier(urgency models.Urgency) float64 {
	switch urgency {
	case models.UrgencyCritical:
		return 0.7
	case models.UrgencyUrgent:
		return 0.85
	default:
		return 1.0
	}
}

// trafficMultiplier models the morning rush, the evening rush and quiet
// overnight roads.
func trafficMultiplier(hour int) float64 {
	switch {
	case hour >= 7 && hour < 9:
		return 1.3
	case hour >= 17 && hour < 19:
		return 1.4
	case hour >= 22 || hour < 6:
		return 0.8
	default:
		return 1.0
	}
}
