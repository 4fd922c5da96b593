package services

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/lifelink/lifelink/internal/models"
	apperrors "github.com/lifelink/lifelink/pkg/errors"
)

const defaultCompletionMinutes = 30

// TopResponder is one entry in the responder leaderboard.
type TopResponder struct {
	DonorID           string  `json:"donor_id"`
	Status            string  `json:"status"`
	MatchScore        float64 `json:"match_score"`
	ResponseMinutes   float64 `json:"response_minutes"`
	ResponderScore    float64 `json:"responder_score"`
	TravelTimeMinutes int     `json:"travel_time_minutes"`
}

// ResponseAnalytics is the read-side rollup over an alert's responses.
type ResponseAnalytics struct {
	AlertID              string         `json:"alert_id"`
	TotalResponses       int            `json:"total_responses"`
	StatusCounts         map[string]int `json:"status_counts"`
	AvgResponseMinutes   float64        `json:"avg_response_minutes"`
	TopResponders        []TopResponder `json:"top_responders"`
	FulfillmentStatus    string         `json:"fulfillment_status"`
	EstCompletionMinutes int            `json:"est_completion_minutes"`
}

// MatchingAnalytics summarises the current matching state of an alert.
type MatchingAnalytics struct {
	AlertID            string          `json:"alert_id"`
	AlertStatus        string          `json:"alert_status"`
	PriorityScore      int             `json:"priority_score"`
	MatchedDonors      []DonorMatchDTO `json:"matched_donors"`
	AvgMatchScore      float64         `json:"avg_match_score"`
	EscalationLevel    int             `json:"escalation_level"`
	EscalationReason   string          `json:"escalation_reason,omitempty"`
	LastMatchingUpdate *time.Time      `json:"last_matching_update,omitempty"`
}

// AnalyticsService produces rollups from lifecycle state. It never mutates.
type AnalyticsService struct {
	db *gorm.DB
}

// NewAnalyticsService constructs an AnalyticsService.
func NewAnalyticsService(db *gorm.DB) (*AnalyticsService, error) {
	if db == nil {
		return nil, errors.New("analytics service: db is required")
	}
	return &AnalyticsService{db: db}, nil
}

// ResponseRollup aggregates response counts, speed and the responder
// leaderboard for one alert.
func (s *AnalyticsService) ResponseRollup(ctx context.Context, alertID string) (*ResponseAnalytics, error) {
	ctx = ensureContext(ctx)

	alert, err := s.loadAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}

	var responses []models.Response
	err = s.db.WithContext(ctx).Where("alert_id = ?", alertID).Find(&responses).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "load responses")
	}

	rollup := &ResponseAnalytics{
		AlertID:       alertID,
		StatusCounts:  make(map[string]int),
		TopResponders: []TopResponder{},
	}
	rollup.TotalResponses = len(responses)

	var speedSum float64
	for i := range responses {
		resp := &responses[i]
		rollup.StatusCounts[string(resp.Status)]++
		speedSum += resp.ResponseSpeedMinutes()
	}
	if len(responses) > 0 {
		rollup.AvgResponseMinutes = round2(speedSum / float64(len(responses)))
	}

	rollup.TopResponders = topResponders(responses, 5)
	rollup.FulfillmentStatus = fulfillmentStatus(alert, rollup.StatusCounts)
	rollup.EstCompletionMinutes = estimatedCompletion(alert, responses)

	return rollup, nil
}

// MatchingRollup reports the alert's matched donor set and escalation state.
func (s *AnalyticsService) MatchingRollup(ctx context.Context, alertID string) (*MatchingAnalytics, error) {
	ctx = ensureContext(ctx)

	alert, err := s.loadAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}

	rollup := &MatchingAnalytics{
		AlertID:            alertID,
		AlertStatus:        string(alert.Status),
		PriorityScore:      alert.PriorityScore,
		MatchedDonors:      []DonorMatchDTO{},
		EscalationLevel:    alert.EscalationLevel,
		EscalationReason:   alert.EscalationReason,
		LastMatchingUpdate: alert.LastMatchingUpdate,
	}

	if len(alert.MatchedDonors) > 0 {
		var matched []models.MatchedDonor
		if err := json.Unmarshal(alert.MatchedDonors, &matched); err != nil {
			return nil, apperrors.Wrap(err, "decode matched donors")
		}
		var scoreSum float64
		for _, m := range matched {
			rollup.MatchedDonors = append(rollup.MatchedDonors, DonorMatchDTO{
				DonorID:      m.DonorID,
				MatchScore:   m.MatchScore,
				FinalScore:   m.FinalScore,
				PriorityRank: m.Rank,
			})
			scoreSum += m.MatchScore
		}
		if len(matched) > 0 {
			rollup.AvgMatchScore = round2(scoreSum / float64(len(matched)))
		}
	}

	return rollup, nil
}

func (s *AnalyticsService) loadAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	var alert models.Alert
	if err := s.db.WithContext(ctx).Take(&alert, "id = ?", alertID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("alert not found")
		}
		return nil, apperrors.Wrap(err, "load alert")
	}
	return &alert, nil
}

// topResponders ranks responders by a blend of match quality and speed,
// rewarding anything under a half-hour reaction.
func topResponders(responses []models.Response, limit int) []TopResponder {
	ranked := make([]TopResponder, 0, len(responses))
	for i := range responses {
		resp := &responses[i]
		minutes := resp.ResponseSpeedMinutes()
		ranked = append(ranked, TopResponder{
			DonorID:           resp.DonorID,
			Status:            string(resp.Status),
			MatchScore:        resp.MatchScore,
			ResponseMinutes:   round2(minutes),
			ResponderScore:    round2(0.7*resp.MatchScore + 0.3*(30-minutes)),
			TravelTimeMinutes: resp.TravelTimeMinutes,
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].ResponderScore > ranked[j].ResponderScore
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// fulfillmentStatus derives a coarse progress label; the first matching
// condition wins.
func fulfillmentStatus(alert *models.Alert, counts map[string]int) string {
	switch {
	case alert.Status == models.AlertStatusCompleted || counts[string(models.ResponseCompleted)] > 0:
		return "completed"
	case alert.Status == models.AlertStatusDonorConfirmed || counts[string(models.ResponseAccepted)] > 0:
		return "donor_confirmed"
	case counts[string(models.ResponseConfirmed)] > 0:
		return "donors_interested"
	case counts[string(models.ResponseInterested)] > 0:
		return "initial_responses"
	default:
		return "waiting"
	}
}

// estimatedCompletion uses the accepted donor's travel estimate when one
// exists; otherwise a default.
func estimatedCompletion(alert *models.Alert, responses []models.Response) int {
	if alert.AcceptedDonorID != nil {
		for i := range responses {
			resp := &responses[i]
			if resp.DonorID == *alert.AcceptedDonorID && resp.TravelTimeMinutes > 0 {
				return resp.TravelTimeMinutes
			}
		}
	}
	return defaultCompletionMinutes
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
