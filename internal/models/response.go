package models

import "time"

// ResponseStatus enumerates the states a donor response moves through.
type ResponseStatus string

const (
	ResponseInterested     ResponseStatus = "interested"
	ResponseConfirmed      ResponseStatus = "confirmed"
	ResponseAccepted       ResponseStatus = "accepted"
	ResponseRejected       ResponseStatus = "rejected"
	ResponseOnHold         ResponseStatus = "on_hold"
	ResponseCompleted      ResponseStatus = "completed"
	ResponseAlertFulfilled ResponseStatus = "alert_fulfilled"
	ResponseUnavailable    ResponseStatus = "unavailable"
)

// Terminal reports whether no further transition may leave the status.
func (s ResponseStatus) Terminal() bool {
	switch s {
	case ResponseCompleted, ResponseRejected, ResponseAlertFulfilled, ResponseUnavailable:
		return true
	}
	return false
}

// UnavailabilityReason classifies why a donor dropped out.
type UnavailabilityReason string

const (
	ReasonEmergency   UnavailabilityReason = "emergency"
	ReasonHealthIssue UnavailabilityReason = "health_issue"
	ReasonPersonal    UnavailabilityReason = "personal"
	ReasonOther       UnavailabilityReason = "other"
)

var validUnavailabilityReasons = map[UnavailabilityReason]struct{}{
	ReasonEmergency:   {},
	ReasonHealthIssue: {},
	ReasonPersonal:    {},
	ReasonOther:       {},
}

// Valid reports whether the reason is one of the supported codes.
func (r UnavailabilityReason) Valid() bool {
	_, ok := validUnavailabilityReasons[r]
	return ok
}

// Response records one donor's reaction to one alert. It is created when the
// donor first reacts and then mutated in place through the state machine;
// the (alert, donor) pair is unique.
type Response struct {
	BaseModel

	AlertID string `gorm:"type:uuid;not null;index;uniqueIndex:idx_alert_donor" json:"alert_id"`
	DonorID string `gorm:"type:uuid;not null;index;uniqueIndex:idx_alert_donor" json:"donor_id"`

	Status ResponseStatus `gorm:"type:varchar(32);not null;default:'interested';index" json:"status"`

	MatchScore        float64 `gorm:"not null;default:0" json:"match_score"`
	PriorityRank      int     `gorm:"not null;default:0" json:"priority_rank"`
	ResponseSpeedSecs int64   `gorm:"not null;default:0" json:"response_speed_secs"`
	TravelTimeMinutes int     `gorm:"not null;default:0" json:"travel_time_minutes"`

	Notes             string               `gorm:"type:text" json:"notes"`
	IsPrimary         bool                 `gorm:"not null;default:false" json:"is_primary"`
	UnavailableReason UnavailabilityReason `gorm:"type:varchar(32)" json:"unavailable_reason,omitempty"`

	// Transition timestamps, set only for transitions actually taken.
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
	AcceptedAt    *time.Time `json:"accepted_at,omitempty"`
	RejectedAt    *time.Time `json:"rejected_at,omitempty"`
	OnHoldAt      *time.Time `json:"on_hold_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	FulfilledAt   *time.Time `json:"fulfilled_at,omitempty"`
	UnavailableAt *time.Time `json:"unavailable_at,omitempty"`
}

// ResponseSpeedMinutes converts the recorded response speed to minutes.
func (r *Response) ResponseSpeedMinutes() float64 {
	return float64(r.ResponseSpeedSecs) / 60
}

// responseTransitions captures the legal edges of the state machine. Forced
// fulfilment (another donor accepted) is handled separately and applies to
// any non-terminal state.
var responseTransitions = map[ResponseStatus][]ResponseStatus{
	ResponseInterested: {ResponseConfirmed, ResponseRejected},
	ResponseConfirmed:  {ResponseAccepted, ResponseOnHold, ResponseRejected, ResponseUnavailable},
	ResponseOnHold:     {ResponseAccepted, ResponseRejected},
	ResponseAccepted:   {ResponseCompleted, ResponseUnavailable},
}

// CanTransition reports whether moving the response to target is legal.
func (r *Response) CanTransition(target ResponseStatus) bool {
	if target == ResponseAlertFulfilled {
		return !r.Status.Terminal()
	}
	for _, next := range responseTransitions[r.Status] {
		if next == target {
			return true
		}
	}
	return false
}
