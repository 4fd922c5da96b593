package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/lifelink/lifelink/internal/models"
)

func eligibleDonor(bloodType string) *models.Donor {
	return &models.Donor{
		BaseModel:    models.BaseModel{ID: "donor-1"},
		Name:         "Asha",
		BloodType:    bloodType,
		HealthStatus: models.HealthGood,
		Available:    true,
	}
}

func TestEligibleRequiresMatchingBloodType(t *testing.T) {
	now := time.Now()
	alert := &models.Alert{BloodType: "O-", Urgency: models.UrgencyCritical}

	require.True(t, Eligible(eligibleDonor("O-"), nil, alert, now))
	require.False(t, Eligible(eligibleDonor("A+"), nil, alert, now))
}

func TestEligibleRejectsRestrictedHealth(t *testing.T) {
	now := time.Now()
	alert := &models.Alert{BloodType: "O-"}

	donor := eligibleDonor("O-")
	donor.HealthStatus = models.HealthRestricted
	require.False(t, Eligible(donor, nil, alert, now))
}

func TestEligibleScreensReportedConditions(t *testing.T) {
	now := time.Now()
	alert := &models.Alert{BloodType: "O-"}

	disqualifying := []string{
		"Hepatitis B",
		"hiv positive",
		"treated for malaria last year",
		"Recent surgery on knee",
		"pregnancy",
	}
	for _, condition := range disqualifying {
		verification := &models.DonorVerification{
			HealthConditions: datatypes.JSON(`["` + condition + `"]`),
		}
		require.False(t, Eligible(eligibleDonor("O-"), verification, alert, now), "condition %q", condition)
	}

	harmless := &models.DonorVerification{
		HealthConditions: datatypes.JSON(`["seasonal allergies"]`),
	}
	require.True(t, Eligible(eligibleDonor("O-"), harmless, alert, now))
}

func TestEligibleFailsClosedOnUnparseableConditions(t *testing.T) {
	now := time.Now()
	alert := &models.Alert{BloodType: "O-"}

	verification := &models.DonorVerification{
		HealthConditions: datatypes.JSON(`{"not": "a list"`),
	}
	require.False(t, Eligible(eligibleDonor("O-"), verification, alert, now))
}

func TestEligibleEnforcesDonationInterval(t *testing.T) {
	now := time.Now()
	alert := &models.Alert{BloodType: "O-"}

	recent := now.Add(-30 * 24 * time.Hour)
	longAgo := now.Add(-90 * 24 * time.Hour)

	donor := eligibleDonor("O-")
	donor.LastDonationAt = &recent
	require.False(t, Eligible(donor, nil, alert, now))

	donor.LastDonationAt = &longAgo
	require.True(t, Eligible(donor, nil, alert, now))
}

func TestEligibleVerificationDateOverridesDonorField(t *testing.T) {
	now := time.Now()
	alert := &models.Alert{BloodType: "O-"}

	longAgo := now.Add(-90 * 24 * time.Hour)
	recent := now.Add(-10 * 24 * time.Hour)

	donor := eligibleDonor("O-")
	donor.LastDonationAt = &longAgo

	verification := &models.DonorVerification{LastDonationDate: &recent}
	require.False(t, Eligible(donor, verification, alert, now))

	// And the other direction: verification says long ago, donor field recent.
	donor.LastDonationAt = &recent
	verification.LastDonationDate = &longAgo
	require.True(t, Eligible(donor, verification, alert, now))
}

func TestFilterEligible(t *testing.T) {
	now := time.Now()
	alert := &models.Alert{BloodType: "B-"}

	recent := now.Add(-5 * 24 * time.Hour)
	donors := []models.Donor{
		{BaseModel: models.BaseModel{ID: "match"}, BloodType: "B-", HealthStatus: models.HealthExcellent},
		{BaseModel: models.BaseModel{ID: "wrong-type"}, BloodType: "A-", HealthStatus: models.HealthExcellent},
		{BaseModel: models.BaseModel{ID: "restricted"}, BloodType: "B-", HealthStatus: models.HealthRestricted},
		{BaseModel: models.BaseModel{ID: "too-soon"}, BloodType: "B-", HealthStatus: models.HealthGood, LastDonationAt: &recent},
	}

	eligible := FilterEligible(donors, nil, alert, now)
	require.Len(t, eligible, 1)
	require.Equal(t, "match", eligible[0].ID)
}

func TestEligibleNilInputs(t *testing.T) {
	now := time.Now()
	require.False(t, Eligible(nil, nil, &models.Alert{}, now))
	require.False(t, Eligible(eligibleDonor("O-"), nil, nil, now))
}
