package datastore

import (
	"time"

	"github.com/soundprint/soundprint/internal/errors"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultSlowQueryThreshold defines the duration after which a query is
// considered slow. One second accommodates migration batch queries while
// still flagging queries that need attention.
const DefaultSlowQueryThreshold = 1 * time.Second

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() gormlogger.Interface {
	return NewGormLogger(DefaultSlowQueryThreshold, gormlogger.Warn)
}

// performAutoMigration runs schema migration for all tables with logging.
func performAutoMigration(db *gorm.DB, dbType string) error {
	migrationStart := time.Now()
	migrationLogger := getLogger().With("db_type", dbType)

	migrationLogger.Debug("Starting database migration")

	tableMappings := []struct {
		model any
		name  string
	}{
		{&Track{}, "tracks"},
	}

	for _, table := range tableMappings {
		tableStart := time.Now()
		tableExists := db.Migrator().HasTable(table.model)

		if err := db.AutoMigrate(table.model); err != nil {
			enhancedErr := errors.New(err).
				Component("datastore").
				Category(errors.CategoryDatabase).
				Context("operation", "auto-migrate-table").
				Context("db_type", dbType).
				Context("table", table.name).
				Build()

			migrationLogger.Error("Table migration failed",
				"table", table.name,
				"error", enhancedErr)
			return enhancedErr
		}

		action := "updated"
		if !tableExists {
			action = "created"
		}
		migrationLogger.Debug("Table migration completed",
			"table", table.name,
			"action", action,
			"duration", time.Since(tableStart))
	}

	migrationLogger.Debug("Database migration completed successfully",
		"total_duration", time.Since(migrationStart),
		"tables_migrated", len(tableMappings))

	return nil
}
