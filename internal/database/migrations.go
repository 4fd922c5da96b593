package database

import (
	"errors"

	"gorm.io/gorm"

	"github.com/lifelink/lifelink/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	return db.AutoMigrate(
		&models.Hospital{},
		&models.Donor{},
		&models.DonorVerification{},
		&models.Alert{},
		&models.Response{},
		&models.Notification{},
	)
}
