package main

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"

	"crashd/internal/database"
	"crashd/internal/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	if command == "create" {
		if len(os.Args) < 3 {
			logger.L.Fatal("Usage: migrate create <migration_name>")
		}
		createMigration(os.Args[2])
		return
	}

	db, err := sql.Open("pgx", database.ConnString())
	if err != nil {
		logger.L.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	migrationsPath := getEnv("MIGRATIONS_PATH", "./migrations")

	switch command {
	case "up":
		logger.Infof("Running migrations...")
		if err := database.RunMigrations(db, migrationsPath); err != nil {
			logger.L.Fatalf("Migration failed: %v", err)
		}
		logger.Infof("Migrations completed successfully")

	case "down":
		logger.Infof("Rolling back last migration...")
		if err := database.RollbackMigration(db, migrationsPath); err != nil {
			logger.L.Fatalf("Rollback failed: %v", err)
		}
		logger.Infof("Rollback completed successfully")

	case "version":
		version, dirty, err := database.MigrationVersion(db, migrationsPath)
		if err != nil {
			logger.L.Fatalf("Failed to get version: %v", err)
		}
		if dirty {
			logger.Warnf("Current version: %d (DIRTY - needs manual intervention)", version)
		} else {
			logger.Infof("Current version: %d", version)
		}

	default:
		logger.Errorf("Unknown command: %s", command)
		printUsage()
		os.Exit(1)
	}
}

func createMigration(name string) {
	files, err := os.ReadDir("./migrations")
	if err != nil {
		logger.L.Fatalf("Failed to read migrations directory: %v", err)
	}

	nextVersion := 1
	for _, file := range files {
		if !file.IsDir() {
			nextVersion++
		}
	}
	nextVersion = (nextVersion / 2) + 1 // each migration has up and down files

	upFile := fmt.Sprintf("./migrations/%06d_%s.up.sql", nextVersion, name)
	downFile := fmt.Sprintf("./migrations/%06d_%s.down.sql", nextVersion, name)

	stamp := time.Now().Format(time.RFC3339)
	upContent := fmt.Sprintf("-- Migration: %s\n-- Created: %s\n\n", name, stamp)
	if err := os.WriteFile(upFile, []byte(upContent), 0644); err != nil {
		logger.L.Fatalf("Failed to create up migration: %v", err)
	}
	downContent := fmt.Sprintf("-- Rollback: %s\n\n", name)
	if err := os.WriteFile(downFile, []byte(downContent), 0644); err != nil {
		logger.L.Fatalf("Failed to create down migration: %v", err)
	}

	logger.Infof("Created migration files:")
	logger.Infof("   - %s", upFile)
	logger.Infof("   - %s", downFile)
}

func printUsage() {
	fmt.Println("Database Migration Tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  migrate up              Run all pending migrations")
	fmt.Println("  migrate down            Rollback the last migration")
	fmt.Println("  migrate version         Show current migration version")
	fmt.Println("  migrate create <name>   Create a new migration file")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  CRASHD_DB_HOST          Database host")
	fmt.Println("  CRASHD_DB_PORT          Database port")
	fmt.Println("  CRASHD_DB_DATABASE      Database name")
	fmt.Println("  CRASHD_DB_USERNAME      Database user")
	fmt.Println("  CRASHD_DB_PASSWORD      Database password")
	fmt.Println("  MIGRATIONS_PATH         Migrations directory (default: ./migrations)")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
