package matching

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/lifelink/lifelink/internal/models"
)

// TieWindow is the score distance within which two candidates are considered
// tied and ordered by the secondary criteria instead.
const TieWindow = 15.0

// DefaultTopN is how many matched donors are attached to an alert.
const DefaultTopN = 3

// Candidate is one eligible donor with every score the ranking engine needs.
type Candidate struct {
	Donor           models.Donor
	Match           ScoreBreakdown
	HistoricalScore float64
	TravelMinutes   int
	FinalScore      float64
}

// FinalScore combines the match score with historical reliability and the
// availability, emergency and health adjustments used for ranking.
func FinalScore(donor *models.Donor, matchScore, historicalScore float64, urgency models.Urgency) float64 {
	score := matchScore + 0.3*historicalScore

	if donor.Available {
		score += 25
	}
	if urgency == models.UrgencyCritical && donor.EmergencyOnly {
		score += 30
	}

	score += healthComponent(donor.HealthStatus)
	score += math.Max(0, 30-donor.AvgResponseMinutes)

	return score
}

// HistoryFunc resolves a donor's historical reliability score.
type HistoryFunc func(ctx context.Context, donorID string) float64

// buildWorkers caps the scoring fan-out regardless of pool size.
const buildWorkers = 8

// BuildCandidates scores every eligible donor against the alert in parallel
// and returns the candidates sorted best-first. The fan-out is bounded by the
// donor count; the fan-in performs the stable ordering of SortCandidates.
func BuildCandidates(ctx context.Context, donors []models.Donor, hospital *models.Hospital, alert *models.Alert, estimator Estimator, history HistoryFunc) []Candidate {
	if len(donors) == 0 {
		return nil
	}

	candidates := make([]Candidate, len(donors))
	hospitalLoc := HospitalLocation(hospital)

	workers := buildWorkers
	if len(donors) < workers {
		workers = len(donors)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				donor := donors[i]
				breakdown := Score(&donor, hospital, alert)

				historical := NeutralHistoryScore
				if history != nil {
					historical = history(ctx, donor.ID)
				}

				travel := 0
				if estimator != nil {
					travel = estimator.EstimateMinutes(DonorLocation(&donor), hospitalLoc, alert.Urgency)
				}

				candidates[i] = Candidate{
					Donor:           donor,
					Match:           breakdown,
					HistoricalScore: historical,
					TravelMinutes:   travel,
					FinalScore:      FinalScore(&donor, breakdown.Total, historical, alert.Urgency),
				}
			}
		}()
	}

send:
	for i := range donors {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break send
		}
	}
	close(jobs)
	wg.Wait()

	SortCandidates(candidates)
	return candidates
}

// SortCandidates totally orders candidates best-first: by final score, with
// scores inside the tie window broken by availability, then health status,
// then average response time. Success rate is deliberately not a tie-break.
func SortCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]

		if math.Abs(a.FinalScore-b.FinalScore) > TieWindow {
			return a.FinalScore > b.FinalScore
		}

		if a.Donor.Available != b.Donor.Available {
			return a.Donor.Available
		}

		pa, pb := models.HealthPriority(a.Donor.HealthStatus), models.HealthPriority(b.Donor.HealthStatus)
		if pa != pb {
			return pa > pb
		}

		if a.Donor.AvgResponseMinutes != b.Donor.AvgResponseMinutes {
			return a.Donor.AvgResponseMinutes < b.Donor.AvgResponseMinutes
		}

		return a.FinalScore > b.FinalScore
	})
}

// TopN returns the best n candidates after sorting.
func TopN(candidates []Candidate, n int) []Candidate {
	if n <= 0 {
		n = DefaultTopN
	}
	if len(candidates) <= n {
		return candidates
	}
	return candidates[:n]
}
