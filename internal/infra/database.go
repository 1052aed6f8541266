package infra

import (
	"fmt"

	"kioskpos/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase opens the kiosk's local SQLite store and migrates the schema.
// WAL mode keeps the drain cycle's writes from blocking sale enqueues, and
// busy_timeout covers the brief lock contention that remains.
func NewDatabase(path string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&model.Sale{},
		&model.SaleItem{},
		&model.Payment{},
		&model.QueueEntry{},
		&model.SyncCursor{},
		&model.Product{},
		&model.Customer{},
	); err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return db, nil
}
