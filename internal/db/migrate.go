package db

import (
	"fmt"

	"github.com/envsyncd/envsyncd/internal/models"

	"gorm.io/gorm"
)

// Migrate applies the schema for all sync service records.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.Repository{},
		&models.EnvironmentFile{},
		&models.Device{},
		&models.Session{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	return nil
}
