package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lifelink/lifelink/internal/matching"
	"github.com/lifelink/lifelink/internal/models"
	apperrors "github.com/lifelink/lifelink/pkg/errors"
	"github.com/lifelink/lifelink/pkg/logger"
	"github.com/lifelink/lifelink/pkg/metrics"
)

// ResponseAction is a hospital-side lifecycle action on a donor response.
type ResponseAction string

const (
	ActionConfirm  ResponseAction = "confirm"
	ActionAccept   ResponseAction = "accept"
	ActionReject   ResponseAction = "reject"
	ActionHold     ResponseAction = "hold"
	ActionComplete ResponseAction = "complete"
)

// ResponseDTO is the sanitized response payload for API consumers.
type ResponseDTO struct {
	ID                string     `json:"id"`
	AlertID           string     `json:"alert_id"`
	DonorID           string     `json:"donor_id"`
	Status            string     `json:"status"`
	MatchScore        float64    `json:"match_score"`
	PriorityRank      int        `json:"priority_rank"`
	ResponseSpeedSecs int64      `json:"response_speed_secs"`
	TravelTimeMinutes int        `json:"travel_time_minutes"`
	Notes             string     `json:"notes,omitempty"`
	IsPrimary         bool       `json:"is_primary"`
	UnavailableReason string     `json:"unavailable_reason,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	AcceptedAt        *time.Time `json:"accepted_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// UnavailabilityResult reports the outcome of a donor dropping out.
type UnavailabilityResult struct {
	Success           bool            `json:"success"`
	Escalated         bool            `json:"escalated"`
	ReplacementDonors []DonorMatchDTO `json:"replacement_donors"`
	Message           string          `json:"message"`
}

// ResponseService is the response lifecycle manager: it creates responses,
// drives the state machine, and handles replacement and escalation when a
// donor becomes unavailable. Accepting a donor is serialized per alert via a
// row lock so only one response can ever hold the accepted status.
type ResponseService struct {
	engine   *matchEngine
	notifier *NotificationService
	auth     Authorizer
	topN     int
	log      *zap.Logger
}

// ResponseOption customises the ResponseService.
type ResponseOption func(*ResponseService)

// WithResponseClock overrides the clock, primarily for tests.
func WithResponseClock(now func() time.Time) ResponseOption {
	return func(s *ResponseService) {
		if now != nil {
			s.engine.now = now
		}
	}
}

// WithResponseEstimator swaps the travel estimator.
func WithResponseEstimator(estimator matching.Estimator) ResponseOption {
	return func(s *ResponseService) {
		if estimator != nil {
			s.engine.estimator = estimator
		}
	}
}

// WithResponseAuthorizer injects the caller-supplied authorization capability.
func WithResponseAuthorizer(auth Authorizer) ResponseOption {
	return func(s *ResponseService) {
		if auth != nil {
			s.auth = auth
		}
	}
}

// NewResponseService constructs a ResponseService.
func NewResponseService(db *gorm.DB, donors DonorDirectory, hospitals HospitalDirectory, notifier *NotificationService, opts ...ResponseOption) (*ResponseService, error) {
	if db == nil {
		return nil, errors.New("response service: db is required")
	}
	if donors == nil {
		return nil, errors.New("response service: donor directory is required")
	}
	if hospitals == nil {
		return nil, errors.New("response service: hospital directory is required")
	}

	svc := &ResponseService{
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
		log:      logger.WithModule("responses"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Record creates a donor's first reaction to an alert, in the interested
// state, capturing match score, response speed and a travel estimate.
func (s *ResponseService) Record(ctx context.Context, alertID, donorID, notes string) (*ResponseDTO, error) {
	ctx = ensureContext(ctx)

	snap, err := s.engine.loadSnapshot(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if !snap.Alert.Open() {
		return nil, apperrors.ErrAlertClosed
	}

	donor, err := s.engine.donors.DonorByID(ctx, donorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("donor not found")
		}
		return nil, apperrors.Wrap(err, "load donor")
	}

	var existing int64
	err = s.engine.db.WithContext(ctx).Model(&models.Response{}).
		Where("alert_id = ? AND donor_id = ?", alertID, donorID).
		Count(&existing).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "check existing response")
	}
	if existing > 0 {
		return nil, apperrors.ErrDuplicateResponse
	}

	now := s.engine.now()
	breakdown := matching.Score(donor, snap.Hospital, snap.Alert)
	response := models.Response{
		AlertID:           alertID,
		DonorID:           donorID,
		Status:            models.ResponseInterested,
		MatchScore:        breakdown.Total,
		ResponseSpeedSecs: int64(now.Sub(snap.Alert.CreatedAt).Seconds()),
		TravelTimeMinutes: s.engine.travelEstimate(donor, snap.Hospital, snap.Alert.Urgency),
		Notes:             notes,
	}

	if err := s.engine.db.WithContext(ctx).Create(&response).Error; err != nil {
		return nil, apperrors.Wrap(err, "create response")
	}

	metrics.ResponsesRecorded.WithLabelValues("interested").Inc()
	s.notify(ctx, NotificationEvent{
		RecipientID:   snap.Alert.HospitalID,
		RecipientType: models.RecipientHospital,
		Type:          "response.recorded",
		Title:         "A donor responded to your alert",
		Message:       fmt.Sprintf("%s is interested in donating %s.", donor.Name, snap.Alert.BloodType),
		AlertID:       alertID,
	})

	dto := responseToDTO(&response)
	return &dto, nil
}

// Manage applies a hospital action to a donor's response. Accept is
// linearizable per alert: the alert row is locked for the duration, the
// chosen response becomes primary and every other live response is
// force-transitioned to alert_fulfilled. Accepting the same donor twice is a
// no-op.
func (s *ResponseService) Manage(ctx context.Context, actorID, alertID, donorID string, action ResponseAction, notes string) error {
	ctx = ensureContext(ctx)

	allowed, err := s.auth.CanManageAlert(ctx, actorID, alertID)
	if err != nil {
		return apperrors.Wrap(err, "authorize")
	}
	if !allowed {
		return apperrors.ErrForbidden
	}

	switch action {
	case ActionConfirm, ActionAccept, ActionReject, ActionHold, ActionComplete:
	default:
		return apperrors.NewBadRequest(fmt.Sprintf("unknown action %q", action))
	}

	err = s.engine.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var alert models.Alert
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&alert, "id = ?", alertID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound.WithMessage("alert not found")
			}
			return apperrors.Wrap(err, "load alert")
		}

		var response models.Response
		if err := tx.Take(&response, "alert_id = ? AND donor_id = ?", alertID, donorID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound.WithMessage("response not found")
			}
			return apperrors.Wrap(err, "load response")
		}

		switch action {
		case ActionConfirm:
			return s.transition(tx, &response, models.ResponseConfirmed, notes)
		case ActionAccept:
			return s.accept(tx, &alert, &response, notes)
		case ActionReject:
			return s.transition(tx, &response, models.ResponseRejected, notes)
		case ActionHold:
			return s.transition(tx, &response, models.ResponseOnHold, notes)
		case ActionComplete:
			return s.complete(tx, &alert, &response, notes)
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.ResponsesRecorded.WithLabelValues(string(action)).Inc()
	s.notifyAction(ctx, alertID, donorID, action)
	return nil
}

// transition applies a plain status change with its timestamp; no side
// effects on other responses.
func (s *ResponseService) transition(tx *gorm.DB, response *models.Response, target models.ResponseStatus, notes string) error {
	if !response.CanTransition(target) {
		return apperrors.NewInvalidState(
			fmt.Sprintf("cannot move response from %s to %s", response.Status, target))
	}

	now := s.engine.now()
	updates := map[string]any{"status": target}
	if notes != "" {
		updates["notes"] = notes
	}

	switch target {
	case models.ResponseConfirmed:
		updates["confirmed_at"] = now
	case models.ResponseRejected:
		updates["rejected_at"] = now
	case models.ResponseOnHold:
		updates["on_hold_at"] = now
	}

	if err := tx.Model(response).Updates(updates).Error; err != nil {
		return apperrors.Wrap(err, "update response")
	}
	response.Status = target
	return nil
}

func (s *ResponseService) accept(tx *gorm.DB, alert *models.Alert, response *models.Response, notes string) error {
	// Idempotent: re-accepting the current primary changes nothing.
	if response.Status == models.ResponseAccepted && alert.AcceptedDonorID != nil && *alert.AcceptedDonorID == response.DonorID {
		return nil
	}

	if alert.AcceptedDonorID != nil && *alert.AcceptedDonorID != response.DonorID {
		return apperrors.NewInvalidState("another donor is already accepted for this alert")
	}
	if alert.Terminal() {
		return apperrors.ErrAlertClosed
	}
	if !response.CanTransition(models.ResponseAccepted) {
		return apperrors.NewInvalidState(
			fmt.Sprintf("cannot accept a response in status %s", response.Status))
	}

	now := s.engine.now()
	err := tx.Model(response).Updates(map[string]any{
		"status":      models.ResponseAccepted,
		"is_primary":  true,
		"accepted_at": now,
		"notes":       notes,
	}).Error
	if err != nil {
		return apperrors.Wrap(err, "accept response")
	}

	// Every other live response is fulfilled by this acceptance.
	err = tx.Model(&models.Response{}).
		Where("alert_id = ? AND donor_id <> ? AND status NOT IN ?",
			alert.ID, response.DonorID, terminalStatuses()).
		Updates(map[string]any{"status": models.ResponseAlertFulfilled, "fulfilled_at": now}).Error
	if err != nil {
		return apperrors.Wrap(err, "fulfil other responses")
	}

	err = tx.Model(alert).Updates(map[string]any{
		"accepted_donor_id": response.DonorID,
		"status":            models.AlertStatusDonorConfirmed,
	}).Error
	if err != nil {
		return apperrors.Wrap(err, "update alert")
	}

	response.Status = models.ResponseAccepted
	return nil
}

func (s *ResponseService) complete(tx *gorm.DB, alert *models.Alert, response *models.Response, notes string) error {
	if !response.CanTransition(models.ResponseCompleted) {
		return apperrors.NewInvalidState(
			fmt.Sprintf("cannot complete a response in status %s", response.Status))
	}

	now := s.engine.now()
	err := tx.Model(response).Updates(map[string]any{
		"status":       models.ResponseCompleted,
		"completed_at": now,
		"notes":        notes,
	}).Error
	if err != nil {
		return apperrors.Wrap(err, "complete response")
	}

	if err := tx.Model(alert).Update("status", models.AlertStatusCompleted).Error; err != nil {
		return apperrors.Wrap(err, "complete alert")
	}

	// Fold the outcome into the donor's rolling averages under a donor row
	// lock so concurrent alerts never lose updates.
	var donor models.Donor
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&donor, "id = ?", response.DonorID).Error; err != nil {
		return apperrors.Wrap(err, "load donor for feedback")
	}
	matching.ApplyOutcome(&donor, matching.Outcome{
		Status:          models.ResponseCompleted,
		ResponseMinutes: response.ResponseSpeedMinutes(),
	})
	err = tx.Model(&donor).Updates(map[string]any{
		"avg_response_minutes": donor.AvgResponseMinutes,
		"success_rate":         donor.SuccessRate,
		"last_donation_at":     now,
	}).Error
	if err != nil {
		return apperrors.Wrap(err, "update donor averages")
	}

	response.Status = models.ResponseCompleted
	return nil
}

// HandleUnavailability marks a donor unavailable, releases their response and
// searches for up to three replacements. With no replacement the alert is
// escalated at the highest level for manual intervention; the search is never
// retried automatically.
func (s *ResponseService) HandleUnavailability(ctx context.Context, alertID, donorID string, reason models.UnavailabilityReason, notes string) (*UnavailabilityResult, error) {
	ctx = ensureContext(ctx)

	if !reason.Valid() {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown unavailability reason %q", reason))
	}

	// Phase one: atomically release the donor and their response.
	err := s.engine.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var alert models.Alert
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&alert, "id = ?", alertID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound.WithMessage("alert not found")
			}
			return apperrors.Wrap(err, "load alert")
		}
		if alert.Terminal() {
			return apperrors.ErrAlertClosed
		}

		var response models.Response
		if err := tx.Take(&response, "alert_id = ? AND donor_id = ?", alertID, donorID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound.WithMessage("response not found")
			}
			return apperrors.Wrap(err, "load response")
		}
		if !response.CanTransition(models.ResponseUnavailable) {
			return apperrors.NewInvalidState(
				fmt.Sprintf("cannot mark a response in status %s unavailable", response.Status))
		}

		now := s.engine.now()
		err := tx.Model(&response).Updates(map[string]any{
			"status":             models.ResponseUnavailable,
			"unavailable_reason": reason,
			"unavailable_at":     now,
			"is_primary":         false,
			"notes":              notes,
		}).Error
		if err != nil {
			return apperrors.Wrap(err, "mark response unavailable")
		}

		if err := tx.Model(&models.Donor{}).Where("id = ?", donorID).Update("available", false).Error; err != nil {
			return apperrors.Wrap(err, "mark donor unavailable")
		}

		if alert.AcceptedDonorID != nil && *alert.AcceptedDonorID == donorID {
			err = tx.Model(&alert).Updates(map[string]any{
				"accepted_donor_id": nil,
				"status":            models.AlertStatusActive,
			}).Error
			if err != nil {
				return apperrors.Wrap(err, "release accepted donor")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ResponsesRecorded.WithLabelValues("unavailable").Inc()

	// Phase two: bounded replacement search; pure reads, no alert lock held.
	snap, err := s.engine.loadSnapshot(ctx, alertID)
	if err != nil {
		return nil, err
	}

	candidates, err := s.engine.eligibleCandidates(ctx, snap, donorID)
	if err != nil {
		return nil, err
	}
	replacements := make([]matching.Candidate, 0, s.topN)
	for _, candidate := range candidates {
		if candidate.Donor.Available && candidate.Match.Total > 0 {
			replacements = append(replacements, candidate)
		}
		if len(replacements) == s.topN {
			break
		}
	}

	if len(replacements) == 0 {
		if err := s.escalate(ctx, alertID, reason); err != nil {
			return nil, err
		}
		return &UnavailabilityResult{
			Success:           false,
			Escalated:         true,
			ReplacementDonors: []DonorMatchDTO{},
			Message:           "no replacement donors available; alert escalated for manual intervention",
		}, nil
	}

	if err := s.attachReplacements(ctx, snap.Alert, replacements); err != nil {
		return nil, err
	}

	return &UnavailabilityResult{
		Success:           true,
		ReplacementDonors: candidatesToDTOs(replacements),
		Message:           fmt.Sprintf("%d replacement donor(s) matched", len(replacements)),
	}, nil
}

func (s *ResponseService) attachReplacements(ctx context.Context, alert *models.Alert, replacements []matching.Candidate) error {
	now := s.engine.now()
	matched := make([]models.MatchedDonor, 0, len(replacements))
	for i, candidate := range replacements {
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
		return apperrors.Wrap(err, "encode replacements")
	}

	err = s.engine.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Alert
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&current, "id = ?", alert.ID).Error; err != nil {
			return apperrors.Wrap(err, "reload alert")
		}
		if current.Terminal() {
			return apperrors.ErrAlertClosed
		}
		return tx.Model(&current).Updates(map[string]any{
			"matched_donors":       raw,
			"last_matching_update": now,
		}).Error
	})
	if err != nil {
		return err
	}

	for _, m := range matched {
		s.notify(ctx, NotificationEvent{
			RecipientID:   m.DonorID,
			RecipientType: models.RecipientDonor,
			Type:          "alert.replacement_match",
			Title:         "Urgent blood request needs you",
			Message:       fmt.Sprintf("A previously matched donor dropped out; %s blood is still needed.", alert.BloodType),
			Severity:      severityFor(alert.Urgency),
			AlertID:       alert.ID,
			Metadata:      map[string]any{"rank": m.Rank},
		})
	}
	return nil
}

func (s *ResponseService) escalate(ctx context.Context, alertID string, reason models.UnavailabilityReason) error {
	now := s.engine.now()
	err := s.engine.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var alert models.Alert
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&alert, "id = ?", alertID).Error; err != nil {
			return apperrors.Wrap(err, "reload alert")
		}
		if alert.Status == models.AlertStatusEscalated {
			return nil
		}
		return tx.Model(&alert).Updates(map[string]any{
			"status":            models.AlertStatusEscalated,
			"escalation_level":  models.EscalationLevelMax,
			"escalation_reason": fmt.Sprintf("donor unavailable (%s), no replacements found", reason),
			"escalated_at":      now,
		}).Error
	})
	if err != nil {
		return err
	}

	metrics.Escalations.Inc()
	s.log.Warn("alert escalated",
		zap.String("alert_id", alertID),
		zap.String("reason", string(reason)),
	)

	var alert models.Alert
	if err := s.engine.db.WithContext(ctx).Take(&alert, "id = ?", alertID).Error; err == nil {
		s.notify(ctx, NotificationEvent{
			RecipientID:   alert.HospitalID,
			RecipientType: models.RecipientHospital,
			Type:          "alert.escalated",
			Title:         "Alert escalated",
			Message:       "No replacement donors could be found. Manual intervention is required.",
			Severity:      "critical",
			AlertID:       alertID,
		})
	}
	return nil
}

// ListByAlert returns every response on an alert ordered by priority rank.
func (s *ResponseService) ListByAlert(ctx context.Context, alertID string) ([]ResponseDTO, error) {
	ctx = ensureContext(ctx)

	var responses []models.Response
	err := s.engine.db.WithContext(ctx).
		Where("alert_id = ?", alertID).
		Order("priority_rank ASC, created_at ASC").
		Find(&responses).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "list responses")
	}

	dtos := make([]ResponseDTO, 0, len(responses))
	for i := range responses {
		dtos = append(dtos, responseToDTO(&responses[i]))
	}
	return dtos, nil
}

func (s *ResponseService) notify(ctx context.Context, event NotificationEvent) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.log.Warn("notification failed", zap.String("type", event.Type), zap.Error(err))
	}
}

func (s *ResponseService) notifyAction(ctx context.Context, alertID, donorID string, action ResponseAction) {
	titles := map[ResponseAction]string{
		ActionConfirm:  "Your response was confirmed",
		ActionAccept:   "You were accepted as the donor",
		ActionReject:   "Your response was declined",
		ActionHold:     "Your response is on hold",
		ActionComplete: "Donation completed, thank you",
	}
	title, ok := titles[action]
	if !ok {
		return
	}
	s.notify(ctx, NotificationEvent{
		RecipientID:   donorID,
		RecipientType: models.RecipientDonor,
		Type:          "response." + string(action),
		Title:         title,
		AlertID:       alertID,
	})
}

func terminalStatuses() []models.ResponseStatus {
	return []models.ResponseStatus{
		models.ResponseCompleted,
		models.ResponseRejected,
		models.ResponseAlertFulfilled,
		models.ResponseUnavailable,
	}
}

func responseToDTO(response *models.Response) ResponseDTO {
	return ResponseDTO{
		ID:                response.ID,
		AlertID:           response.AlertID,
		DonorID:           response.DonorID,
		Status:            string(response.Status),
		MatchScore:        response.MatchScore,
		PriorityRank:      response.PriorityRank,
		ResponseSpeedSecs: response.ResponseSpeedSecs,
		TravelTimeMinutes: response.TravelTimeMinutes,
		Notes:             response.Notes,
		IsPrimary:         response.IsPrimary,
		UnavailableReason: string(response.UnavailableReason),
		CreatedAt:         response.CreatedAt,
		AcceptedAt:        response.AcceptedAt,
		CompletedAt:       response.CompletedAt,
	}
}
