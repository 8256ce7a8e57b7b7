package database

import (
	"fmt"

	"habita-chat/internal/domain/conversation"
	"habita-chat/internal/domain/lead"
	"habita-chat/internal/domain/listing"
	"habita-chat/internal/domain/message"
	"habita-chat/internal/domain/user"

	"gorm.io/gorm"
)

// tables in dependency order; drops and truncates run in reverse.
var tableOrder = []string{"users", "listings", "conversations", "messages", "leads"}

// AutoMigrate creates or updates the schema for every table the service
// owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&user.User{},
		&listing.Listing{},
		&conversation.Conversation{},
		&message.Message{},
		&lead.Lead{},
	)
}

// RunFullMigration applies the raw SQL migrations, then AutoMigrate.
func RunFullMigration(db *gorm.DB, migrationsDir string) error {
	if err := ApplyRawMigrations(db, migrationsDir); err != nil {
		return err
	}
	return AutoMigrate(db)
}

func Ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func HealthCheck(db *gorm.DB) error {
	if err := Ping(db); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	return nil
}

func TableExists(db *gorm.DB, table string) (bool, error) {
	return db.Migrator().HasTable(table), nil
}

func TableCount(db *gorm.DB, table string) (int64, error) {
	var count int64
	err := db.Table(table).Count(&count).Error
	return count, err
}

// DropAllTables removes every owned table. Destructive; the migrate CLI
// gates it behind an explicit command.
func DropAllTables(db *gorm.DB) error {
	for i := len(tableOrder) - 1; i >= 0; i-- {
		if err := db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", tableOrder[i])).Error; err != nil {
			return err
		}
	}
	return nil
}

// TruncateAllTables empties every owned table keeping the schema.
func TruncateAllTables(db *gorm.DB) error {
	for i := len(tableOrder) - 1; i >= 0; i-- {
		if err := db.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", tableOrder[i])).Error; err != nil {
			return err
		}
	}
	return nil
}
