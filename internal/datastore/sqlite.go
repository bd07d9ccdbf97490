package datastore

import (
	"fmt"
	"path/filepath"

	"github.com/soundprint/soundprint/internal/conf"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SQLiteStore implements the track store on SQLite.
type SQLiteStore struct {
	DataStore
	Settings *conf.Settings
}

// Open sets up the SQLite database connection and runs migrations.
func (store *SQLiteStore) Open() error {
	dir, fileName := filepath.Split(store.Settings.Database.SQLite.Path)
	basePath := conf.GetBasePath(dir)
	absoluteFilePath := filepath.Join(basePath, fileName)

	db, err := gorm.Open(sqlite.Open(absoluteFilePath), &gorm.Config{Logger: createGormLogger()})
	if err != nil {
		return fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Track inserts arrive from a single ingest worker but search enrichment
	// reads run concurrently, WAL keeps readers unblocked.
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		getLogger().Warn("Failed to enable WAL mode", "error", err)
	}

	store.DB = db
	return performAutoMigration(db, "SQLite")
}
