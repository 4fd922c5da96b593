package matching

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lifelink/lifelink/internal/models"
)

func ptr(v float64) *float64 { return &v }

// latDegreesForKm converts a north-south distance to degrees of latitude.
func latDegreesForKm(km float64) float64 {
	return km / 111.19492664455873
}

func TestScoreComponentsNeverNegative(t *testing.T) {
	hospital := &models.Hospital{Latitude: ptr(0), Longitude: ptr(0)}
	alert := &models.Alert{Urgency: models.UrgencyNormal}

	// Worst case donor: far away, restricted, unavailable, slow, zero success.
	donor := &models.Donor{
		Latitude:           ptr(latDegreesForKm(500)),
		Longitude:          ptr(0),
		HealthStatus:       models.HealthRestricted,
		Available:          false,
		AvgResponseMinutes: 600,
		SuccessRate:        0,
	}

	breakdown := Score(donor, hospital, alert)
	require.GreaterOrEqual(t, breakdown.Distance, 0.0)
	require.GreaterOrEqual(t, breakdown.Health, 0.0)
	require.GreaterOrEqual(t, breakdown.Availability, 0.0)
	require.GreaterOrEqual(t, breakdown.ResponseTime, 0.0)
	require.GreaterOrEqual(t, breakdown.SuccessRate, 0.0)
	require.GreaterOrEqual(t, breakdown.EmergencyBonus, 0.0)
	require.GreaterOrEqual(t, breakdown.Total, 0.0)

	require.Equal(t, 0.0, breakdown.Distance)
	require.Equal(t, 0.0, breakdown.ResponseTime)
}

func TestScoreBreakdownValues(t *testing.T) {
	hospital := &models.Hospital{Latitude: ptr(0), Longitude: ptr(0)}
	alert := &models.Alert{Urgency: models.UrgencyNormal}

	donor := &models.Donor{
		Latitude:           ptr(latDegreesForKm(2)),
		Longitude:          ptr(0),
		HealthStatus:       models.HealthExcellent,
		Available:          true,
		AvgResponseMinutes: 5,
		SuccessRate:        80,
	}

	breakdown := Score(donor, hospital, alert)
	require.InDelta(t, 2, breakdown.DistanceKm, 0.01)
	require.InDelta(t, 28, breakdown.Distance, 0.01)
	require.Equal(t, 25.0, breakdown.Health)
	require.Equal(t, 20.0, breakdown.Availability)
	require.InDelta(t, 12.5, breakdown.ResponseTime, 1e-9)
	require.Equal(t, 8.0, breakdown.SuccessRate)
	require.Equal(t, 0.0, breakdown.EmergencyBonus)
	require.InDelta(t, 93.5, breakdown.Total, 0.01)
}

func TestScoreEmergencyBonusOnlyForCriticalAlerts(t *testing.T) {
	hospital := &models.Hospital{}
	donor := &models.Donor{EmergencyOnly: true, Available: true}

	critical := Score(donor, hospital, &models.Alert{Urgency: models.UrgencyCritical})
	require.Equal(t, 10.0, critical.EmergencyBonus)

	normal := Score(donor, hospital, &models.Alert{Urgency: models.UrgencyNormal})
	require.Equal(t, 0.0, normal.EmergencyBonus)
}

func TestScoreSuccessRateCapped(t *testing.T) {
	hospital := &models.Hospital{}
	alert := &models.Alert{Urgency: models.UrgencyNormal}

	donor := &models.Donor{SuccessRate: 100}
	require.Equal(t, 10.0, Score(donor, hospital, alert).SuccessRate)
}

func TestScoreDefaultHealthStatus(t *testing.T) {
	hospital := &models.Hospital{}
	alert := &models.Alert{Urgency: models.UrgencyNormal}

	unset := Score(&models.Donor{}, hospital, alert)
	fair := Score(&models.Donor{HealthStatus: models.HealthFair}, hospital, alert)
	require.Equal(t, fair.Health, unset.Health)
	require.Equal(t, 15.0, unset.Health)
}

func TestScoreDeterministicWithStringLocations(t *testing.T) {
	hospital := &models.Hospital{Location: "Central Hospital, Lagos"}
	alert := &models.Alert{Urgency: models.UrgencyNormal}
	donor := &models.Donor{Location: "Ikeja, Lagos", Available: true}

	first := Score(donor, hospital, alert)
	second := Score(donor, hospital, alert)
	require.Equal(t, first, second)
}

func TestDistanceKmSameTextIsLocal(t *testing.T) {
	a := Location{Text: " Ikeja, Lagos "}
	b := Location{Text: "ikeja, lagos"}
	require.Equal(t, 1.0, DistanceKm(a, b))
}

func TestHaversineKnownDistance(t *testing.T) {
	// One degree of latitude along a meridian is ~111.19 km.
	a := Location{Coords: &Coordinates{Lat: 0, Lng: 0}}
	b := Location{Coords: &Coordinates{Lat: 1, Lng: 0}}
	require.InDelta(t, 111.19, DistanceKm(a, b), 0.05)
}
