package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lifelink/lifelink/internal/database/testutil"
	"github.com/lifelink/lifelink/internal/models"
)

type fixture struct {
	db        *gorm.DB
	alerts    *AlertService
	responses *ResponseService
	analytics *AnalyticsService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	donors, err := NewGormDonorDirectory(db)
	require.NoError(t, err)
	hospitals, err := NewGormHospitalDirectory(db)
	require.NoError(t, err)
	notifier, err := NewNotificationService(db, nil)
	require.NoError(t, err)

	alerts, err := NewAlertService(db, donors, hospitals, notifier)
	require.NoError(t, err)
	responses, err := NewResponseService(db, donors, hospitals, notifier)
	require.NoError(t, err)
	analytics, err := NewAnalyticsService(db)
	require.NoError(t, err)

	return &fixture{db: db, alerts: alerts, responses: responses, analytics: analytics}
}

func seedHospital(t *testing.T, db *gorm.DB, name string) *models.Hospital {
	t.Helper()
	hospital := &models.Hospital{Name: name, Location: "Central District"}
	require.NoError(t, db.Create(hospital).Error)
	return hospital
}

type donorMutator func(*models.Donor)

func seedDonor(t *testing.T, db *gorm.DB, name, bloodType string, mutators ...donorMutator) *models.Donor {
	t.Helper()
	donor := &models.Donor{
		Name:         name,
		BloodType:    bloodType,
		Location:     "North Side",
		Available:    true,
		HealthStatus: models.HealthGood,
	}
	for _, mutate := range mutators {
		mutate(donor)
	}
	require.NoError(t, db.Create(donor).Error)
	return donor
}

func createAlert(t *testing.T, f *fixture, hospitalID, bloodType string, urgency models.Urgency) *AlertDTO {
	t.Helper()
	alert, err := f.alerts.Create(context.Background(), CreateAlertInput{
		HospitalID:    hospitalID,
		BloodType:     bloodType,
		Urgency:       urgency,
		UnitsNeeded:   2,
		Location:      "Central District",
		ContactNumber: "+1-555-0100",
	})
	require.NoError(t, err)
	return alert
}

func loadAlert(t *testing.T, db *gorm.DB, id string) *models.Alert {
	t.Helper()
	var alert models.Alert
	require.NoError(t, db.Take(&alert, "id = ?", id).Error)
	return &alert
}

func loadResponse(t *testing.T, db *gorm.DB, alertID, donorID string) *models.Response {
	t.Helper()
	var response models.Response
	require.NoError(t, db.Take(&response, "alert_id = ? AND donor_id = ?", alertID, donorID).Error)
	return &response
}

func daysAgo(days int) *time.Time {
	ts := time.Now().AddDate(0, 0, -days)
	return &ts
}
