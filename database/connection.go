package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Ananth-NQI/appointment-gateway/internal/config"
	"github.com/Ananth-NQI/appointment-gateway/internal/models"
)

// Connect opens the postgres pool described by cfg.
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, nil
}

// Migrate creates or updates the gateway tables and their indexes.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.OtpLog{},
		&models.OtpDailyLimit{},
		&models.ApiKey{},
		&models.Appointment{},
	); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
