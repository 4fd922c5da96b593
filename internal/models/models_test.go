package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	m := &BaseModel{}
	require.NoError(t, m.BeforeCreate(nil))
	require.NotEmpty(t, m.ID)

	fixed := &BaseModel{ID: "alert-1"}
	require.NoError(t, fixed.BeforeCreate(nil))
	require.Equal(t, "alert-1", fixed.ID)
}

func TestUrgencyValid(t *testing.T) {
	require.True(t, UrgencyCritical.Valid())
	require.True(t, UrgencyUrgent.Valid())
	require.True(t, UrgencyNormal.Valid())
	require.False(t, Urgency("panic").Valid())
}

func TestAlertOpenAndTerminal(t *testing.T) {
	alert := &Alert{Status: AlertStatusActive}
	require.True(t, alert.Open())
	require.False(t, alert.Terminal())

	alert.Status = AlertStatusDonorConfirmed
	require.True(t, alert.Open())

	for _, status := range []AlertStatus{AlertStatusCompleted, AlertStatusExpired, AlertStatusCancelled, AlertStatusEscalated} {
		alert.Status = status
		require.False(t, alert.Open(), "status %s", status)
		require.True(t, alert.Terminal(), "status %s", status)
	}
}

func TestResponseTransitions(t *testing.T) {
	cases := []struct {
		from    ResponseStatus
		to      ResponseStatus
		allowed bool
	}{
		{ResponseInterested, ResponseConfirmed, true},
		{ResponseInterested, ResponseRejected, true},
		{ResponseInterested, ResponseAccepted, false},
		{ResponseConfirmed, ResponseAccepted, true},
		{ResponseConfirmed, ResponseOnHold, true},
		{ResponseConfirmed, ResponseRejected, true},
		{ResponseConfirmed, ResponseUnavailable, true},
		{ResponseOnHold, ResponseAccepted, true},
		{ResponseAccepted, ResponseCompleted, true},
		{ResponseAccepted, ResponseUnavailable, true},
		{ResponseAccepted, ResponseRejected, false},
		{ResponseCompleted, ResponseAccepted, false},
		{ResponseRejected, ResponseConfirmed, false},
	}

	for _, tc := range cases {
		resp := &Response{Status: tc.from}
		require.Equal(t, tc.allowed, resp.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestForcedFulfilmentOnlyFromNonTerminal(t *testing.T) {
	for _, status := range []ResponseStatus{ResponseInterested, ResponseConfirmed, ResponseOnHold, ResponseAccepted} {
		resp := &Response{Status: status}
		require.True(t, resp.CanTransition(ResponseAlertFulfilled), "status %s", status)
	}
	for _, status := range []ResponseStatus{ResponseCompleted, ResponseRejected, ResponseAlertFulfilled, ResponseUnavailable} {
		resp := &Response{Status: status}
		require.False(t, resp.CanTransition(ResponseAlertFulfilled), "status %s", status)
	}
}

func TestHealthPriorityOrdering(t *testing.T) {
	require.Greater(t, HealthPriority(HealthExcellent), HealthPriority(HealthGood))
	require.Greater(t, HealthPriority(HealthGood), HealthPriority(HealthFair))
	require.Greater(t, HealthPriority(HealthFair), HealthPriority(HealthRestricted))
	require.Greater(t, HealthPriority(HealthRestricted), HealthPriority(HealthStatus("")))
}

func TestResponseSpeedMinutes(t *testing.T) {
	resp := &Response{ResponseSpeedSecs: 300}
	require.InDelta(t, 5.0, resp.ResponseSpeedMinutes(), 1e-9)
}

func TestUnavailabilityReasonValid(t *testing.T) {
	require.True(t, ReasonEmergency.Valid())
	require.True(t, ReasonOther.Valid())
	require.False(t, UnavailabilityReason("vacation").Valid())
}

func TestMinDonationInterval(t *testing.T) {
	require.Equal(t, 56*24*time.Hour, MinDonationInterval)
}
