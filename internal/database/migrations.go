package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/hearthly/hearth/internal/models"
)

// AutoMigrate creates or updates the household server schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.SystemSetting{},
		&models.FamilyMember{},
		&models.Chore{},
		&models.ShoppingItem{},
	)
}

// MigrateOffline creates or updates the offline client schema: cached collections,
// cache metadata and the mutation queue.
func MigrateOffline(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.CachedRecord{},
		&models.Metadata{},
		&models.QueueEntry{},
	)
}

// SeedData assigns the installation a stable household identifier on first start.
func SeedData(db *gorm.DB) error {
	if _, err := EnsureHouseholdID(context.Background(), db); err != nil {
		return fmt.Errorf("seed household: %w", err)
	}
	return nil
}
