package db

import (
	"fmt"

	"github.com/fiberline/opsbot/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model opsbot persists.
func AllModels() []interface{} {
	return []interface{}{
		&models.ChatSession{},
		&models.ActionLog{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
