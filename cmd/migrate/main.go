package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"habita-chat/config"
	"habita-chat/pkg/database"

	"gorm.io/gorm"
)

const usage = `
habita-chat - Database CLI Tool

Usage:
  migrate [command] [flags]

Commands:
  up          Run all migrations (SQL + GORM)
  status      Show database connection status
  seed-dev    Seed with development/test data
  reset       Drop all tables and re-run migrations (DANGEROUS)
  truncate    Truncate all tables (DANGEROUS)

Flags:
  -migrations string   Path to migrations directory (default "migrations")

Examples:
  go run cmd/migrate/main.go up
  go run cmd/migrate/main.go seed-dev
  go run cmd/migrate/main.go reset
`

func main() {
	migrationsDir := flag.String("migrations", "migrations", "Path to migrations directory")

	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	cfg := config.LoadConfig()
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	switch flag.Arg(0) {
	case "up":
		runMigrationsUp(db, *migrationsDir)
	case "status":
		showStatus(db)
	case "seed-dev":
		runSeedDevelopment(db)
	case "reset":
		runReset(db, *migrationsDir)
	case "truncate":
		runTruncate(db)
	default:
		fmt.Printf("Unknown command: %s\n", flag.Arg(0))
		flag.Usage()
		os.Exit(1)
	}
}

func runMigrationsUp(db *gorm.DB, migrationsDir string) {
	log.Println("Running migrations...")
	if err := database.RunFullMigration(db, migrationsDir); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	log.Println("Migrations completed")
}

func showStatus(db *gorm.DB) {
	if err := database.Ping(db); err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	log.Println("Database connection: OK")

	tables := []string{"users", "listings", "conversations", "messages", "leads"}
	for _, table := range tables {
		exists, err := database.TableExists(db, table)
		if err != nil {
			log.Printf("error checking table %s: %v", table, err)
			continue
		}
		if exists {
			count, _ := database.TableCount(db, table)
			log.Printf("table %-15s exists (%d rows)", table, count)
		} else {
			log.Printf("table %-15s does not exist", table)
		}
	}
}

func runSeedDevelopment(db *gorm.DB) {
	log.Println("Seeding development data...")
	result, err := database.SeedDevelopment(db)
	if err != nil {
		log.Fatalf("seeding failed: %v", err)
	}
	log.Printf("seeded %d users, %d listings, %d conversations, %d messages",
		len(result.Users), len(result.Listings), len(result.Conversations), len(result.Messages))
}

func runReset(db *gorm.DB, migrationsDir string) {
	log.Println("WARNING: dropping all tables and re-running migrations")
	if err := database.DropAllTables(db); err != nil {
		log.Fatalf("failed to drop tables: %v", err)
	}
	if err := database.RunFullMigration(db, migrationsDir); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	log.Println("Database reset completed")
}

func runTruncate(db *gorm.DB) {
	log.Println("WARNING: truncating all tables")
	if err := database.TruncateAllTables(db); err != nil {
		log.Fatalf("truncate failed: %v", err)
	}
	log.Println("All tables truncated")
}
