package matching

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lifelink/lifelink/internal/models"
)

func TestFinalScoreComposition(t *testing.T) {
	donor := &models.Donor{
		Available:          true,
		HealthStatus:       models.HealthExcellent,
		AvgResponseMinutes: 5,
		EmergencyOnly:      true,
	}

	// match + 0.3*hist + availability(25) + emergency(30) + health(25) + max(0, 30-5)
	score := FinalScore(donor, 93.5, 50, models.UrgencyCritical)
	require.InDelta(t, 93.5+15+25+30+25+25, score, 1e-9)

	// No emergency bonus on a non-critical alert.
	score = FinalScore(donor, 93.5, 50, models.UrgencyNormal)
	require.InDelta(t, 93.5+15+25+25+25, score, 1e-9)
}

func TestFinalScoreResponseTimeFloor(t *testing.T) {
	slow := &models.Donor{AvgResponseMinutes: 120}
	fast := &models.Donor{}

	diff := FinalScore(fast, 0, 0, models.UrgencyNormal) - FinalScore(slow, 0, 0, models.UrgencyNormal)
	require.InDelta(t, 30, diff, 1e-9)
}

// Scenario: available/excellent/fast donor must outrank an unavailable donor
// that happens to live marginally closer, because the score gap exceeds the
// tie window.
func TestRankingAvailableDonorBeatsCloserUnavailable(t *testing.T) {
	hospital := &models.Hospital{Latitude: ptr(0), Longitude: ptr(0)}
	alert := &models.Alert{BloodType: "A+", Urgency: models.UrgencyNormal}

	donorA := models.Donor{
		BaseModel:          models.BaseModel{ID: "donor-a"},
		Latitude:           ptr(latDegreesForKm(2)),
		Longitude:          ptr(0),
		Available:          true,
		HealthStatus:       models.HealthExcellent,
		AvgResponseMinutes: 5,
		SuccessRate:        80,
	}
	donorB := models.Donor{
		BaseModel:          models.BaseModel{ID: "donor-b"},
		Latitude:           ptr(latDegreesForKm(1)),
		Longitude:          ptr(0),
		Available:          false,
		HealthStatus:       models.HealthGood,
		AvgResponseMinutes: 20,
		SuccessRate:        60,
	}

	candidates := BuildCandidates(context.Background(), []models.Donor{donorB, donorA}, hospital, alert, nil, nil)
	require.Len(t, candidates, 2)
	require.Equal(t, "donor-a", candidates[0].Donor.ID)
	require.Greater(t, candidates[0].FinalScore-candidates[1].FinalScore, TieWindow)
}

func TestSortCandidatesTieBreaks(t *testing.T) {
	base := func(id string) Candidate {
		return Candidate{
			Donor:      models.Donor{BaseModel: models.BaseModel{ID: id}},
			FinalScore: 100,
		}
	}

	available := base("available")
	available.Donor.Available = true
	available.Donor.HealthStatus = models.HealthFair

	healthier := base("healthier")
	healthier.Donor.Available = true
	healthier.Donor.HealthStatus = models.HealthExcellent

	faster := base("faster")
	faster.Donor.Available = true
	faster.Donor.HealthStatus = models.HealthExcellent
	faster.Donor.AvgResponseMinutes = 1
	healthier.Donor.AvgResponseMinutes = 9

	unavailable := base("unavailable")
	unavailable.FinalScore = 110 // higher score but inside the tie window

	candidates := []Candidate{unavailable, available, healthier, faster}
	SortCandidates(candidates)

	require.Equal(t, "faster", candidates[0].Donor.ID)
	require.Equal(t, "healthier", candidates[1].Donor.ID)
	require.Equal(t, "available", candidates[2].Donor.ID)
	require.Equal(t, "unavailable", candidates[3].Donor.ID)
}

func TestSortCandidatesOutsideTieWindowUsesScore(t *testing.T) {
	low := Candidate{Donor: models.Donor{BaseModel: models.BaseModel{ID: "low"}, Available: true}, FinalScore: 50}
	high := Candidate{Donor: models.Donor{BaseModel: models.BaseModel{ID: "high"}}, FinalScore: 90}

	candidates := []Candidate{low, high}
	SortCandidates(candidates)
	require.Equal(t, "high", candidates[0].Donor.ID)
}

func TestSortCandidatesIdempotent(t *testing.T) {
	candidates := []Candidate{
		{Donor: models.Donor{BaseModel: models.BaseModel{ID: "a"}, Available: true, HealthStatus: models.HealthGood}, FinalScore: 101},
		{Donor: models.Donor{BaseModel: models.BaseModel{ID: "b"}, Available: true, HealthStatus: models.HealthExcellent}, FinalScore: 99},
		{Donor: models.Donor{BaseModel: models.BaseModel{ID: "c"}}, FinalScore: 140},
	}

	SortCandidates(candidates)
	first := []string{candidates[0].Donor.ID, candidates[1].Donor.ID, candidates[2].Donor.ID}

	SortCandidates(candidates)
	second := []string{candidates[0].Donor.ID, candidates[1].Donor.ID, candidates[2].Donor.ID}
	require.Equal(t, first, second)
}

func TestBuildCandidatesUsesHistoryAndEstimator(t *testing.T) {
	hospital := &models.Hospital{Location: "Central"}
	alert := &models.Alert{BloodType: "A+", Urgency: models.UrgencyCritical}

	donors := []models.Donor{
		{BaseModel: models.BaseModel{ID: "d1"}, Location: "North", Available: true},
		{BaseModel: models.BaseModel{ID: "d2"}, Location: "South", Available: true},
	}

	history := func(ctx context.Context, donorID string) float64 {
		if donorID == "d1" {
			return 90
		}
		return 10
	}
	est := NewHeuristicEstimator(WithNow(fixedClock(12)))

	candidates := BuildCandidates(context.Background(), donors, hospital, alert, est, history)
	require.Len(t, candidates, 2)

	byID := map[string]Candidate{}
	for _, c := range candidates {
		byID[c.Donor.ID] = c
	}
	require.Equal(t, 90.0, byID["d1"].HistoricalScore)
	require.Equal(t, 10.0, byID["d2"].HistoricalScore)
	require.Greater(t, byID["d1"].TravelMinutes, 0)
}

func TestBuildCandidatesManyDonors(t *testing.T) {
	hospital := &models.Hospital{Latitude: ptr(0), Longitude: ptr(0)}
	alert := &models.Alert{BloodType: "A+", Urgency: models.UrgencyNormal}

	donors := make([]models.Donor, 50)
	for i := range donors {
		donors[i] = models.Donor{
			BaseModel: models.BaseModel{ID: string(rune('a' + i%26))},
			Latitude:  ptr(latDegreesForKm(float64(i))),
			Longitude: ptr(0),
			Available: true,
		}
	}

	candidates := BuildCandidates(context.Background(), donors, hospital, alert, nil, nil)
	require.Len(t, candidates, 50)
	for i := 1; i < len(candidates); i++ {
		// Sorted best-first, so scores never jump upwards by more than the tie window.
		require.LessOrEqual(t, candidates[i].FinalScore, candidates[i-1].FinalScore+TieWindow)
	}
}

func TestTopN(t *testing.T) {
	candidates := []Candidate{{FinalScore: 3}, {FinalScore: 2}, {FinalScore: 1}, {FinalScore: 0}}

	require.Len(t, TopN(candidates, 3), 3)
	require.Len(t, TopN(candidates, 0), 3) // default
	require.Len(t, TopN(candidates, 10), 4)
}
