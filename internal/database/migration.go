package database

import (
	"fmt"

	"walletcore/internal/models"

	"gorm.io/gorm"
)

// AutoMigrate runs database schema migrations for all models.
// Migrations are additive only: columns are added, never dropped.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Account{},
		&models.CreditCard{},
		&models.Category{},
		&models.Budget{},
		&models.Transaction{},
		&models.SyncState{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
