package services

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lifelink/lifelink/internal/models"
	"github.com/lifelink/lifelink/pkg/logger"
)

// DonorDirectory is the lookup contract over donor registration records.
// Registration itself is owned by an external collaborator; the matching core
// reads donors and writes back availability and rolling averages only.
type DonorDirectory interface {
	DonorByID(ctx context.Context, id string) (*models.Donor, error)
	DonorsByBloodType(ctx context.Context, bloodType string) ([]models.Donor, error)
	VerificationsFor(ctx context.Context, donorIDs []string) (map[string]*models.DonorVerification, error)
}

// HospitalDirectory resolves hospital records.
type HospitalDirectory interface {
	HospitalByID(ctx context.Context, id string) (*models.Hospital, error)
}

// Dispatcher delivers a notification event to its recipient. Delivery is
// fire-and-forget: the core decides who and when, never how.
type Dispatcher interface {
	Dispatch(ctx context.Context, event NotificationEvent)
}

// NotificationEvent is the payload handed to the Dispatcher.
type NotificationEvent struct {
	RecipientID   string
	RecipientType models.RecipientType
	Type          string
	Title         string
	Message       string
	Severity      string
	AlertID       string
	Metadata      map[string]any
}

// Authorizer is the externally injected capability deciding whether an actor
// may mutate an alert. The core never inspects admin identity itself.
type Authorizer interface {
	CanManageAlert(ctx context.Context, actorID, alertID string) (bool, error)
}

// AllowAll authorizes every actor; single-tenant deployments and tests use it.
type AllowAll struct{}

// CanManageAlert implements Authorizer.
func (AllowAll) CanManageAlert(ctx context.Context, actorID, alertID string) (bool, error) {
	return true, nil
}

// GormDonorDirectory serves donor lookups straight from the database.
type GormDonorDirectory struct {
	db *gorm.DB
}

// NewGormDonorDirectory constructs a DonorDirectory over gorm.
func NewGormDonorDirectory(db *gorm.DB) (*GormDonorDirectory, error) {
	if db == nil {
		return nil, errors.New("donor directory: db is required")
	}
	return &GormDonorDirectory{db: db}, nil
}

// DonorByID implements DonorDirectory.
func (d *GormDonorDirectory) DonorByID(ctx context.Context, id string) (*models.Donor, error) {
	var donor models.Donor
	if err := d.db.WithContext(ctx).Take(&donor, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &donor, nil
}

// DonorsByBloodType implements DonorDirectory using the blood-type index.
func (d *GormDonorDirectory) DonorsByBloodType(ctx context.Context, bloodType string) ([]models.Donor, error) {
	var donors []models.Donor
	if err := d.db.WithContext(ctx).Where("blood_type = ?", bloodType).Find(&donors).Error; err != nil {
		return nil, err
	}
	return donors, nil
}

// VerificationsFor implements DonorDirectory. Donors without a verification
// record simply have no entry in the result.
func (d *GormDonorDirectory) VerificationsFor(ctx context.Context, donorIDs []string) (map[string]*models.DonorVerification, error) {
	result := make(map[string]*models.DonorVerification, len(donorIDs))
	if len(donorIDs) == 0 {
		return result, nil
	}

	var records []models.DonorVerification
	if err := d.db.WithContext(ctx).Where("donor_id IN ?", donorIDs).Find(&records).Error; err != nil {
		return nil, err
	}
	for i := range records {
		result[records[i].DonorID] = &records[i]
	}
	return result, nil
}

// GormHospitalDirectory serves hospital lookups from the database.
type GormHospitalDirectory struct {
	db *gorm.DB
}

// NewGormHospitalDirectory constructs a HospitalDirectory over gorm.
func NewGormHospitalDirectory(db *gorm.DB) (*GormHospitalDirectory, error) {
	if db == nil {
		return nil, errors.New("hospital directory: db is required")
	}
	return &GormHospitalDirectory{db: db}, nil
}

// HospitalByID implements HospitalDirectory.
func (d *GormHospitalDirectory) HospitalByID(ctx context.Context, id string) (*models.Hospital, error) {
	var hospital models.Hospital
	if err := d.db.WithContext(ctx).Take(&hospital, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &hospital, nil
}

// LoggingDispatcher is the default Dispatcher: it records the event and moves
// on. Real deployments swap in a push/SMS/email transport.
type LoggingDispatcher struct {
	log *zap.Logger
}

// NewLoggingDispatcher constructs the default dispatcher.
func NewLoggingDispatcher() *LoggingDispatcher {
	return &LoggingDispatcher{log: logger.WithModule("dispatcher")}
}

// Dispatch implements Dispatcher.
func (d *LoggingDispatcher) Dispatch(ctx context.Context, event NotificationEvent) {
	d.log.Info("notification dispatched",
		zap.String("recipient_id", event.RecipientID),
		zap.String("recipient_type", string(event.RecipientType)),
		zap.String("type", event.Type),
		zap.String("alert_id", event.AlertID),
	)
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
