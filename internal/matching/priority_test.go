package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lifelink/lifelink/internal/models"
)

func alertExpiringIn(hours float64, urgency models.Urgency, bloodType string, units int, now time.Time) *models.Alert {
	return &models.Alert{
		BloodType:   bloodType,
		Urgency:     urgency,
		UnitsNeeded: units,
		ExpiresAt:   now.Add(time.Duration(hours * float64(time.Hour))),
	}
}

func TestPriorityScoreCriticalRareLargeOrder(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	// critical(100) + <3h(30) + rare O-(20) + >5 units(25)
	alert := alertExpiringIn(2, models.UrgencyCritical, "O-", 6, now)
	require.Equal(t, 175, PriorityScore(alert, now))
}

func TestPriorityScoreTimeSensitivityBands(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		hours float64
		want  int
	}{
		{0.5, 30 + 50},
		{2, 30 + 30},
		{5, 30 + 15},
		{12, 30},
	}

	for _, tc := range cases {
		alert := alertExpiringIn(tc.hours, models.UrgencyNormal, "A+", 1, now)
		require.Equal(t, tc.want, PriorityScore(alert, now), "hours=%v", tc.hours)
	}
}

func TestPriorityScoreMonotonicInUrgency(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	critical := PriorityScore(alertExpiringIn(12, models.UrgencyCritical, "A+", 2, now), now)
	urgent := PriorityScore(alertExpiringIn(12, models.UrgencyUrgent, "A+", 2, now), now)
	normal := PriorityScore(alertExpiringIn(12, models.UrgencyNormal, "A+", 2, now), now)

	require.Greater(t, critical, urgent)
	require.Greater(t, urgent, normal)
}

func TestPriorityScoreRarityAndUnits(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	common := PriorityScore(alertExpiringIn(12, models.UrgencyNormal, "O+", 1, now), now)
	rare := PriorityScore(alertExpiringIn(12, models.UrgencyNormal, "AB-", 1, now), now)
	require.Equal(t, 20, rare-common)

	few := PriorityScore(alertExpiringIn(12, models.UrgencyNormal, "O+", 2, now), now)
	some := PriorityScore(alertExpiringIn(12, models.UrgencyNormal, "O+", 3, now), now)
	many := PriorityScore(alertExpiringIn(12, models.UrgencyNormal, "O+", 6, now), now)
	require.Equal(t, few, common)
	require.Equal(t, 15, some-common)
	require.Equal(t, 25, many-common)
}
