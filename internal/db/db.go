package db

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sujalbistaa/karmafeed/internal/models"
)

// DefaultURL is used when no database URL is configured.
const DefaultURL = "sqlite://feed.db"

// Init opens the draft database. dbURL must start with postgres:// or
// sqlite://; an empty URL means DefaultURL.
func Init(dbURL string) (*gorm.DB, error) {
	if dbURL == "" {
		dbURL = DefaultURL
		slog.Info("DATABASE_URL not set, using default", "url", DefaultURL)
	}

	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(dbURL, "postgres://"), strings.HasPrefix(dbURL, "postgresql://"):
		dialector = postgres.Open(dbURL)
		slog.Info("Connecting to PostgreSQL database...")
	case strings.HasPrefix(dbURL, "sqlite://"):
		dsn := strings.TrimPrefix(dbURL, "sqlite://")
		dialector = sqlite.Open(dsn)
		slog.Info("Connecting to SQLite database", "path", dsn)
	default:
		return nil, fmt.Errorf("invalid database URL prefix, must start with 'postgres://' or 'sqlite://'")
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	slog.Info("Database connection established.")
	return db, nil
}

// Migrate creates or updates the tables this module owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.Draft{})
}
