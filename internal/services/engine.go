package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/lifelink/lifelink/internal/matching"
	"github.com/lifelink/lifelink/internal/models"
	apperrors "github.com/lifelink/lifelink/pkg/errors"
)

// matchEngine bundles the collaborators every matching pass needs. Both the
// alert and the response services drive it; a pass fetches the alert and the
// hospital exactly once so scoring sees one consistent snapshot.
type matchEngine struct {
	db        *gorm.DB
	donors    DonorDirectory
	hospitals HospitalDirectory
	estimator matching.Estimator
	now       func() time.Time
}

// snapshot resolves an alert and its hospital for the duration of one
// logical operation.
type snapshot struct {
	Alert    *models.Alert
	Hospital *models.Hospital
}

func (e *matchEngine) loadSnapshot(ctx context.Context, alertID string) (*snapshot, error) {
	var alert models.Alert
	if err := e.db.WithContext(ctx).Take(&alert, "id = ?", alertID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("alert not found")
		}
		return nil, apperrors.Wrap(err, "load alert")
	}

	hospital, err := e.hospitals.HospitalByID(ctx, alert.HospitalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("hospital not found")
		}
		return nil, apperrors.Wrap(err, "load hospital")
	}

	return &snapshot{Alert: &alert, Hospital: hospital}, nil
}

// eligibleCandidates runs the full eligibility + scoring + ranking pipeline
// for the snapshot. An empty result is a valid outcome, never an error.
// Donors whose verification lookup fails are excluded (fail closed).
func (e *matchEngine) eligibleCandidates(ctx context.Context, snap *snapshot, excludeDonorID string) ([]matching.Candidate, error) {
	pool, err := e.donors.DonorsByBloodType(ctx, snap.Alert.BloodType)
	if err != nil {
		return nil, apperrors.Wrap(err, "load donor pool")
	}

	if excludeDonorID != "" {
		filtered := pool[:0]
		for _, donor := range pool {
			if donor.ID != excludeDonorID {
				filtered = append(filtered, donor)
			}
		}
		pool = filtered
	}
	if len(pool) == 0 {
		return nil, nil
	}

	ids := make([]string, len(pool))
	for i := range pool {
		ids[i] = pool[i].ID
	}
	verifications, err := e.donors.VerificationsFor(ctx, ids)
	if err != nil {
		return nil, apperrors.Wrap(err, "load verifications")
	}

	eligible := matching.FilterEligible(pool, verifications, snap.Alert, e.now())
	if len(eligible) == 0 {
		return nil, nil
	}

	history := func(ctx context.Context, donorID string) float64 {
		return e.historyScore(ctx, donorID, snap.Alert)
	}

	return matching.BuildCandidates(ctx, eligible, snap.Hospital, snap.Alert, e.estimator, history), nil
}

// historyScore derives the donor's reliability from past responses, ignoring
// the alert currently being matched.
func (e *matchEngine) historyScore(ctx context.Context, donorID string, target *models.Alert) float64 {
	var responses []models.Response
	err := e.db.WithContext(ctx).
		Where("donor_id = ? AND alert_id <> ?", donorID, target.ID).
		Find(&responses).Error
	if err != nil || len(responses) == 0 {
		return matching.NeutralHistoryScore
	}

	alertIDs := make([]string, 0, len(responses))
	for _, resp := range responses {
		alertIDs = append(alertIDs, resp.AlertID)
	}

	var alerts []models.Alert
	if err := e.db.WithContext(ctx).Where("id IN ?", alertIDs).Find(&alerts).Error; err != nil {
		return matching.NeutralHistoryScore
	}
	byID := make(map[string]*models.Alert, len(alerts))
	for i := range alerts {
		byID[alerts[i].ID] = &alerts[i]
	}

	records := make([]matching.HistoricalRecord, 0, len(responses))
	for i := range responses {
		records = append(records, matching.HistoricalRecord{
			Response: &responses[i],
			Alert:    byID[responses[i].AlertID],
		})
	}

	return matching.HistoricalScore(records, target.BloodType, target.Urgency)
}

// travelEstimate is a convenience wrapper used when recording responses.
func (e *matchEngine) travelEstimate(donor *models.Donor, hospital *models.Hospital, urgency models.Urgency) int {
	if e.estimator == nil {
		return 0
	}
	return e.estimator.EstimateMinutes(matching.DonorLocation(donor), matching.HospitalLocation(hospital), urgency)
}
