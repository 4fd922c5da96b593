package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lifelink/lifelink/internal/models"
)

func fixedClock(hour int) func() time.Time {
	return func() time.Time {
		return time.Date(2026, 3, 14, hour, 30, 0, 0, time.UTC)
	}
}

func tenKmApart() (Location, Location) {
	from := Location{Coords: &Coordinates{Lat: latDegreesForKm(10), Lng: 0}}
	to := Location{Coords: &Coordinates{Lat: 0, Lng: 0}}
	return from, to
}

func TestEstimateMinutesBaseRate(t *testing.T) {
	est := NewHeuristicEstimator(WithNow(fixedClock(12)))
	from, to := tenKmApart()

	// 10 km x 2 min/km, no urgency or traffic adjustment.
	require.Equal(t, 20, est.EstimateMinutes(from, to, models.UrgencyNormal))
}

func TestEstimateMinutesUrgencyMultipliers(t *testing.T) {
	est := NewHeuristicEstimator(WithNow(fixedClock(12)))
	from, to := tenKmApart()

	require.Equal(t, 14, est.EstimateMinutes(from, to, models.UrgencyCritical))
	require.Equal(t, 17, est.EstimateMinutes(from, to, models.UrgencyUrgent))
	require.Equal(t, 20, est.EstimateMinutes(from, to, models.UrgencyNormal))
}

func TestEstimateMinutesTrafficWindows(t *testing.T) {
	from, to := tenKmApart()

	cases := []struct {
		hour int
		want int
	}{
		{8, 26},  // morning rush x1.3
		{18, 28}, // evening rush x1.4
		{23, 16}, // overnight x0.8
		{3, 16},  // overnight x0.8
		{12, 20}, // off-peak x1.0
	}

	for _, tc := range cases {
		est := NewHeuristicEstimator(WithNow(fixedClock(tc.hour)))
		require.Equal(t, tc.want, est.EstimateMinutes(from, to, models.UrgencyNormal), "hour=%d", tc.hour)
	}
}

func TestEstimateMinutesZeroDistance(t *testing.T) {
	est := NewHeuristicEstimator(WithNow(fixedClock(12)))
	loc := Location{Coords: &Coordinates{Lat: 6.52, Lng: 3.37}}

	require.Equal(t, 0, est.EstimateMinutes(loc, loc, models.UrgencyCritical))
}

func TestHeuristicEstimatorSatisfiesEstimator(t *testing.T) {
	var _ Estimator = NewHeuristicEstimator()
}
