package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lifelink/lifelink/internal/matching"
	"github.com/lifelink/lifelink/internal/models"
	apperrors "github.com/lifelink/lifelink/pkg/errors"
	"github.com/lifelink/lifelink/pkg/logger"
	"github.com/lifelink/lifelink/pkg/metrics"
)

const defaultExpiryHours = 24

// AlertDTO is the sanitized alert payload for API responses.
type AlertDTO struct {
	ID                 string                `json:"id"`
	HospitalID         string                `json:"hospital_id"`
	BloodType          string                `json:"blood_type"`
	Urgency            string                `json:"urgency"`
	UnitsNeeded        int                   `json:"units_needed"`
	Location           string                `json:"location"`
	TargetArea         string                `json:"target_area,omitempty"`
	RadiusKm           float64               `json:"radius_km,omitempty"`
	Description        string                `json:"description"`
	ContactNumber      string                `json:"contact_number"`
	Status             string                `json:"status"`
	PriorityScore      int                   `json:"priority_score"`
	ExpiresAt          time.Time             `json:"expires_at"`
	CreatedAt          time.Time             `json:"created_at"`
	MatchedDonors      []models.MatchedDonor `json:"matched_donors,omitempty"`
	LastMatchingUpdate *time.Time            `json:"last_matching_update,omitempty"`
	AcceptedDonorID    *string               `json:"accepted_donor_id,omitempty"`
	EscalationLevel    int                   `json:"escalation_level,omitempty"`
	EscalationReason   string                `json:"escalation_reason,omitempty"`
}

// DonorMatchDTO is one ranked donor recommendation for an alert.
type DonorMatchDTO struct {
	DonorID         string  `json:"donor_id"`
	Name            string  `json:"name"`
	BloodType       string  `json:"blood_type"`
	Location        string  `json:"location"`
	Available       bool    `json:"available"`
	HealthStatus    string  `json:"health_status"`
	DistanceKm      float64 `json:"distance_km"`
	MatchScore      float64 `json:"match_score"`
	HistoricalScore float64 `json:"historical_score"`
	FinalScore      float64 `json:"final_score"`
	TravelMinutes   int     `json:"travel_minutes"`
	PriorityRank    int     `json:"priority_rank"`
}

// CreateAlertInput describes the fields needed to raise an alert.
type CreateAlertInput struct {
	HospitalID     string
	BloodType      string
	Urgency        models.Urgency
	UnitsNeeded    int
	Location       string
	TargetArea     string
	RadiusKm       float64
	Description    string
	ContactNumber  string
	ExpiresInHours float64
}

// ListAlertsOptions filters alert listings.
type ListAlertsOptions struct {
	HospitalID string
	Status     models.AlertStatus
	Page       int
	PerPage    int
}

// ListAlertsResult is a paginated alert listing.
type ListAlertsResult struct {
	Alerts  []AlertDTO
	Total   int64
	Page    int
	PerPage int
}

// AlertService owns alert creation, matching passes and alert-level
// bookkeeping. Lifecycle transitions on individual responses live in
// ResponseService.
type AlertService struct {
	engine   *matchEngine
	notifier *NotificationService
	auth     Authorizer
	topN     int
	log      *zap.Logger
}

// AlertOption customises the AlertService.
type AlertOption func(*AlertService)

// WithEstimator swaps the travel estimator, e.g. for a routing-backed one.
func WithEstimator(estimator matching.Estimator) AlertOption {
	return func(s *AlertService) {
		if estimator != nil {
			s.engine.estimator = estimator
		}
	}
}

// WithClock overrides the clock, primarily for tests.
func WithClock(now func() time.Time) AlertOption {
	return func(s *AlertService) {
		if now != nil {
			s.engine.now = now
		}
	}
}

// WithAuthorizer injects the caller-supplied authorization capability.
func WithAuthorizer(auth Authorizer) AlertOption {
	return func(s *AlertService) {
		if auth != nil {
			s.auth = auth
		}
	}
}

// WithTopN changes how many matched donors are attached to an alert.
func WithTopN(n int) AlertOption {
	return func(s *AlertService) {
		if n > 0 {
			s.topN = n
		}
	}
}

// NewAlertService constructs an AlertService.
func NewAlertService(db *gorm.DB, donors DonorDirectory, hospitals HospitalDirectory, notifier *NotificationService, opts ...AlertOption) (*AlertService, error) {
	if db == nil {
		return nil, errors.New("alert service: db is required")
	}
	if donors == nil {
		return nil, errors.New("alert service: donor directory is required")
	}
	if hospitals == nil {
		return nil, errors.New("alert service: hospital directory is required")
	}

	svc := &AlertService{
		engine: &matchEngine{
			db:        db,
			donors:    donors,
			hospitals: hospitals,
			estimator: matching.NewHeuristicEstimator(),
			now:       time.Now,
		},
		notifier: notifier,
		auth:     AllowAll{},
		topN:     matching.DefaultTopN,
		log:      logger.WithModule("alerts"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Create raises a new alert: it computes the priority score, runs the initial
// matching pass, attaches the top donors and notifies them.
func (s *AlertService) Create(ctx context.Context, input CreateAlertInput) (*AlertDTO, error) {
	ctx = ensureContext(ctx)

	if err := s.validateCreate(&input); err != nil {
		return nil, err
	}

	hospital, err := s.engine.hospitals.HospitalByID(ctx, input.HospitalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("hospital not found")
		}
		return nil, apperrors.Wrap(err, "load hospital")
	}

	now := s.engine.now()
	alert := models.Alert{
		HospitalID:    hospital.ID,
		BloodType:     input.BloodType,
		Urgency:       input.Urgency,
		UnitsNeeded:   input.UnitsNeeded,
		Location:      input.Location,
		TargetArea:    input.TargetArea,
		RadiusKm:      input.RadiusKm,
		Description:   input.Description,
		ContactNumber: input.ContactNumber,
		Status:        models.AlertStatusActive,
		ExpiresAt:     now.Add(time.Duration(input.ExpiresInHours * float64(time.Hour))),
	}
	alert.PriorityScore = matching.PriorityScore(&alert, now)

	if err := s.engine.db.WithContext(ctx).Create(&alert).Error; err != nil {
		return nil, apperrors.Wrap(err, "create alert")
	}

	metrics.AlertsCreated.WithLabelValues(string(alert.Urgency)).Inc()
	metrics.ActiveAlerts.Inc()

	// Initial matching pass. A thin pool is not an error; the alert simply
	// starts with no matched donors.
	snap := &snapshot{Alert: &alert, Hospital: hospital}
	candidates, err := s.engine.eligibleCandidates(ctx, snap, "")
	if err != nil {
		s.log.Warn("initial matching pass failed", zap.String("alert_id", alert.ID), zap.Error(err))
	} else if err := s.attachMatches(ctx, &alert, matching.TopN(candidates, s.topN)); err != nil {
		s.log.Warn("attach matches failed", zap.String("alert_id", alert.ID), zap.Error(err))
	}

	dto := alertToDTO(&alert)
	return &dto, nil
}

func (s *AlertService) validateCreate(input *CreateAlertInput) error {
	if strings.TrimSpace(input.HospitalID) == "" {
		return apperrors.NewBadRequest("hospital id is required")
	}
	if strings.TrimSpace(input.BloodType) == "" {
		return apperrors.NewBadRequest("blood type is required")
	}
	if !input.Urgency.Valid() {
		return apperrors.NewBadRequest("urgency must be critical, urgent or normal")
	}
	if input.UnitsNeeded <= 0 {
		return apperrors.NewBadRequest("units needed must be positive")
	}
	if input.ExpiresInHours == 0 {
		input.ExpiresInHours = defaultExpiryHours
	}
	if input.ExpiresInHours < 0 {
		return apperrors.NewBadRequest("expiry must be in the future")
	}
	return nil
}

// attachMatches persists the matched donor shortlist on the alert and
// notifies each newly matched donor.
func (s *AlertService) attachMatches(ctx context.Context, alert *models.Alert, candidates []matching.Candidate) error {
	now := s.engine.now()
	matched := make([]models.MatchedDonor, 0, len(candidates))
	for i, candidate := range candidates {
		matched = append(matched, models.MatchedDonor{
			DonorID:    candidate.Donor.ID,
			MatchScore: candidate.Match.Total,
			FinalScore: candidate.FinalScore,
			Rank:       i + 1,
			MatchedAt:  now,
		})
	}

	raw, err := json.Marshal(matched)
	if err != nil {
		return apperrors.Wrap(err, "encode matched donors")
	}

	alert.MatchedDonors = datatypes.JSON(raw)
	alert.LastMatchingUpdate = &now
	err = s.engine.db.WithContext(ctx).Model(alert).
		Updates(map[string]any{"matched_donors": alert.MatchedDonors, "last_matching_update": now}).Error
	if err != nil {
		return apperrors.Wrap(err, "persist matched donors")
	}

	if s.notifier != nil {
		for _, m := range matched {
			_ = s.notifier.Notify(ctx, NotificationEvent{
				RecipientID:   m.DonorID,
				RecipientType: models.RecipientDonor,
				Type:          "alert.matched",
				Title:         "Urgent blood request near you",
				Message:       fmt.Sprintf("A hospital needs %s blood (%s).", alert.BloodType, alert.Urgency),
				Severity:      severityFor(alert.Urgency),
				AlertID:       alert.ID,
				Metadata:      map[string]any{"rank": m.Rank},
			})
		}
	}
	return nil
}

// Get returns one alert by id.
func (s *AlertService) Get(ctx context.Context, alertID string) (*AlertDTO, error) {
	ctx = ensureContext(ctx)
	snap, err := s.engine.loadSnapshot(ctx, alertID)
	if err != nil {
		return nil, err
	}
	dto := alertToDTO(snap.Alert)
	return &dto, nil
}

// List returns alerts matching the filters, newest first.
func (s *AlertService) List(ctx context.Context, opts ListAlertsOptions) (*ListAlertsResult, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page < 1 {
		page = 1
	}
	perPage := opts.PerPage
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	query := s.engine.db.WithContext(ctx).Model(&models.Alert{})
	if opts.HospitalID != "" {
		query = query.Where("hospital_id = ?", opts.HospitalID)
	}
	if opts.Status != "" {
		query = query.Where("status = ?", opts.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, apperrors.Wrap(err, "count alerts")
	}

	var alerts []models.Alert
	err := query.Order("priority_score DESC, created_at DESC").
		Limit(perPage).
		Offset((page - 1) * perPage).
		Find(&alerts).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "list alerts")
	}

	result := &ListAlertsResult{Total: total, Page: page, PerPage: perPage}
	for i := range alerts {
		result.Alerts = append(result.Alerts, alertToDTO(&alerts[i]))
	}
	return result, nil
}

// Delete removes an alert and cascades to its responses.
func (s *AlertService) Delete(ctx context.Context, actorID, alertID string) error {
	ctx = ensureContext(ctx)

	allowed, err := s.auth.CanManageAlert(ctx, actorID, alertID)
	if err != nil {
		return apperrors.Wrap(err, "authorize")
	}
	if !allowed {
		return apperrors.ErrForbidden
	}

	return s.engine.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var alert models.Alert
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&alert, "id = ?", alertID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound.WithMessage("alert not found")
			}
			return apperrors.Wrap(err, "load alert")
		}

		if err := tx.Where("alert_id = ?", alertID).Delete(&models.Response{}).Error; err != nil {
			return apperrors.Wrap(err, "delete responses")
		}
		if err := tx.Delete(&alert).Error; err != nil {
			return apperrors.Wrap(err, "delete alert")
		}
		if alert.Open() {
			metrics.ActiveAlerts.Dec()
		}
		return nil
	})
}

// ExtendExpiry pushes the alert deadline out and recomputes its priority.
func (s *AlertService) ExtendExpiry(ctx context.Context, actorID, alertID string, hours float64) (*AlertDTO, error) {
	ctx = ensureContext(ctx)

	if hours <= 0 {
		return nil, apperrors.NewBadRequest("extension hours must be positive")
	}

	allowed, err := s.auth.CanManageAlert(ctx, actorID, alertID)
	if err != nil {
		return nil, apperrors.Wrap(err, "authorize")
	}
	if !allowed {
		return nil, apperrors.ErrForbidden
	}

	var alert models.Alert
	err = s.engine.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&alert, "id = ?", alertID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound.WithMessage("alert not found")
			}
			return apperrors.Wrap(err, "load alert")
		}
		if alert.Terminal() {
			return apperrors.NewInvalidState("cannot extend a closed alert")
		}

		now := s.engine.now()
		alert.ExpiresAt = alert.ExpiresAt.Add(time.Duration(hours * float64(time.Hour)))
		if !alert.ExpiresAt.After(now) {
			alert.ExpiresAt = now.Add(time.Duration(hours * float64(time.Hour)))
		}
		alert.PriorityScore = matching.PriorityScore(&alert, now)

		return tx.Model(&alert).
			Updates(map[string]any{"expires_at": alert.ExpiresAt, "priority_score": alert.PriorityScore}).Error
	})
	if err != nil {
		return nil, err
	}

	dto := alertToDTO(&alert)
	return &dto, nil
}

// FindEligibleDonors runs the eligibility filter, scorer and ranking engine
// for the alert and returns up to limit recommendations with 1-based ranks.
// An empty slice means no eligible donors, which callers must handle.
func (s *AlertService) FindEligibleDonors(ctx context.Context, alertID string, limit int) ([]DonorMatchDTO, error) {
	ctx = ensureContext(ctx)
	started := time.Now()

	snap, err := s.engine.loadSnapshot(ctx, alertID)
	if err != nil {
		return nil, err
	}

	candidates, err := s.engine.eligibleCandidates(ctx, snap, "")
	if err != nil {
		return nil, err
	}
	if limit > 0 {
		candidates = matching.TopN(candidates, limit)
	}

	metrics.RankingDuration.Observe(time.Since(started).Seconds())
	return candidatesToDTOs(candidates), nil
}

// GetTopRecommendedDonors returns the best three donors with priority ranks.
func (s *AlertService) GetTopRecommendedDonors(ctx context.Context, alertID string) ([]DonorMatchDTO, error) {
	return s.FindEligibleDonors(ctx, alertID, s.topN)
}

// RefreshRankings re-scores every donor who has already responded to the
// alert and reassigns priority ranks. It never re-runs eligibility filtering
// and is idempotent for unchanged inputs.
func (s *AlertService) RefreshRankings(ctx context.Context, alertID string) error {
	ctx = ensureContext(ctx)
	started := time.Now()

	snap, err := s.engine.loadSnapshot(ctx, alertID)
	if err != nil {
		return err
	}

	var responses []models.Response
	if err := s.engine.db.WithContext(ctx).Where("alert_id = ?", alertID).Find(&responses).Error; err != nil {
		return apperrors.Wrap(err, "load responses")
	}
	if len(responses) == 0 {
		return nil
	}

	donorIDs := make([]string, 0, len(responses))
	for _, resp := range responses {
		donorIDs = append(donorIDs, resp.DonorID)
	}
	var donors []models.Donor
	if err := s.engine.db.WithContext(ctx).Where("id IN ?", donorIDs).Find(&donors).Error; err != nil {
		return apperrors.Wrap(err, "load responders")
	}

	history := func(ctx context.Context, donorID string) float64 {
		return s.engine.historyScore(ctx, donorID, snap.Alert)
	}
	candidates := matching.BuildCandidates(ctx, donors, snap.Hospital, snap.Alert, s.engine.estimator, history)

	rankByDonor := make(map[string]matching.Candidate, len(candidates))
	for _, candidate := range candidates {
		rankByDonor[candidate.Donor.ID] = candidate
	}

	now := s.engine.now()
	err = s.engine.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, candidate := range candidates {
			err := tx.Model(&models.Response{}).
				Where("alert_id = ? AND donor_id = ?", alertID, candidate.Donor.ID).
				Updates(map[string]any{
					"match_score":   candidate.Match.Total,
					"priority_rank": i + 1,
				}).Error
			if err != nil {
				return apperrors.Wrap(err, "update response rank")
			}
		}
		return tx.Model(&models.Alert{}).
			Where("id = ?", alertID).
			Update("last_matching_update", now).Error
	})
	if err != nil {
		return err
	}

	metrics.RankingDuration.Observe(time.Since(started).Seconds())
	s.log.Debug("rankings refreshed",
		zap.String("alert_id", alertID),
		zap.Int("responders", len(candidates)),
	)
	return nil
}

// ExpireDue transitions every active alert past its deadline to expired and
// returns how many were swept. Safe to re-run at any time.
func (s *AlertService) ExpireDue(ctx context.Context) (int, error) {
	ctx = ensureContext(ctx)
	now := s.engine.now()

	result := s.engine.db.WithContext(ctx).Model(&models.Alert{}).
		Where("status = ? AND expires_at <= ?", models.AlertStatusActive, now).
		Update("status", models.AlertStatusExpired)
	if result.Error != nil {
		return 0, apperrors.Wrap(result.Error, "expire alerts")
	}

	swept := int(result.RowsAffected)
	for i := 0; i < swept; i++ {
		metrics.ActiveAlerts.Dec()
	}
	if swept > 0 {
		s.log.Info("expired alerts swept", zap.Int("count", swept))
	}
	return swept, nil
}

// ActiveAlertIDs lists alerts still accepting responses, for the re-ranking sweep.
func (s *AlertService) ActiveAlertIDs(ctx context.Context) ([]string, error) {
	ctx = ensureContext(ctx)

	var ids []string
	err := s.engine.db.WithContext(ctx).Model(&models.Alert{}).
		Where("status = ?", models.AlertStatusActive).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "list active alerts")
	}
	return ids, nil
}

func candidatesToDTOs(candidates []matching.Candidate) []DonorMatchDTO {
	dtos := make([]DonorMatchDTO, 0, len(candidates))
	for i, candidate := range candidates {
		dtos = append(dtos, DonorMatchDTO{
			DonorID:         candidate.Donor.ID,
			Name:            candidate.Donor.Name,
			BloodType:       candidate.Donor.BloodType,
			Location:        candidate.Donor.Location,
			Available:       candidate.Donor.Available,
			HealthStatus:    string(candidate.Donor.HealthStatus),
			DistanceKm:      candidate.Match.DistanceKm,
			MatchScore:      candidate.Match.Total,
			HistoricalScore: candidate.HistoricalScore,
			FinalScore:      candidate.FinalScore,
			TravelMinutes:   candidate.TravelMinutes,
			PriorityRank:    i + 1,
		})
	}
	return dtos
}

func alertToDTO(alert *models.Alert) AlertDTO {
	dto := AlertDTO{
		ID:                 alert.ID,
		HospitalID:         alert.HospitalID,
		BloodType:          alert.BloodType,
		Urgency:            string(alert.Urgency),
		UnitsNeeded:        alert.UnitsNeeded,
		Location:           alert.Location,
		TargetArea:         alert.TargetArea,
		RadiusKm:           alert.RadiusKm,
		Description:        alert.Description,
		ContactNumber:      alert.ContactNumber,
		Status:             string(alert.Status),
		PriorityScore:      alert.PriorityScore,
		ExpiresAt:          alert.ExpiresAt,
		CreatedAt:          alert.CreatedAt,
		LastMatchingUpdate: alert.LastMatchingUpdate,
		AcceptedDonorID:    alert.AcceptedDonorID,
		EscalationLevel:    alert.EscalationLevel,
		EscalationReason:   alert.EscalationReason,
	}
	if len(alert.MatchedDonors) > 0 {
		_ = json.Unmarshal(alert.MatchedDonors, &dto.MatchedDonors)
	}
	return dto
}

func severityFor(urgency models.Urgency) string {
	switch urgency {
	case models.UrgencyCritical:
		return "critical"
	case models.UrgencyUrgent:
		return "warning"
	default:
		return "info"
	}
}
