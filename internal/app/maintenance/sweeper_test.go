package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lifelink/lifelink/internal/database/testutil"
	"github.com/lifelink/lifelink/internal/models"
	"github.com/lifelink/lifelink/internal/services"
)

func newAlertService(t *testing.T) (*services.AlertService, *gorm.DB) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	donors, err := services.NewGormDonorDirectory(db)
	require.NoError(t, err)
	hospitals, err := services.NewGormHospitalDirectory(db)
	require.NoError(t, err)
	alerts, err := services.NewAlertService(db, donors, hospitals, nil)
	require.NoError(t, err)
	return alerts, db
}

func TestRunOnceExpiresOverdueAlerts(t *testing.T) {
	alerts, db := newAlertService(t)

	hospital := &models.Hospital{Name: "City General"}
	require.NoError(t, db.Create(hospital).Error)

	created, err := alerts.Create(context.Background(), services.CreateAlertInput{
		HospitalID:  hospital.ID,
		BloodType:   "O+",
		Urgency:     models.UrgencyNormal,
		UnitsNeeded: 1,
	})
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Alert{}).
		Where("id = ?", created.ID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	sweeper := NewSweeper(alerts)
	require.NoError(t, sweeper.RunOnce(context.Background()))

	var alert models.Alert
	require.NoError(t, db.Take(&alert, "id = ?", created.ID).Error)
	require.Equal(t, models.AlertStatusExpired, alert.Status)
}

func TestRunOnceWithoutServiceIsANoop(t *testing.T) {
	sweeper := NewSweeper(nil)
	require.NoError(t, sweeper.RunOnce(context.Background()))
}

func TestStartRegistersJobs(t *testing.T) {
	alerts, _ := newAlertService(t)

	c := cron.New(cron.WithLogger(cron.DiscardLogger))
	sweeper := NewSweeper(alerts, WithCron(c),
		WithExpirySchedule("@every 1h"),
		WithRerankSchedule("@every 2h"))

	require.NoError(t, sweeper.Start())
	require.Len(t, c.Entries(), 2)

	stop := sweeper.Stop()
	select {
	case <-stop.Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop in time")
	}
}
