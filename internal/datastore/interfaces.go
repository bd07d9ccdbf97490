// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"strings"

	"github.com/soundprint/soundprint/internal/conf"
	"github.com/soundprint/soundprint/internal/errors"
	"gorm.io/gorm"
)

// Interface abstracts the underlying database implementation and defines the
// operations the rest of the service performs against the track store.
type Interface interface {
	Open() error
	Close() error
	InsertTrack(track *Track) error
	GetTrack(id string) (Track, error)
	GetTrackIDByHash(hash string) (string, error)
	TracksByIDs(ids []string) (map[string]Track, error)
	ChromaprintCandidates(durationSec, tolerance float64) ([]Track, error)
	SearchTracks(query string, limit, offset int) ([]Track, int64, error)
	DeleteTrack(id string) error
	CountTracks() (int64, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new datastore instance based on the configured database type.
// Returns nil for unsupported types; ValidateSettings rejects those earlier.
func New(settings *conf.Settings) Interface {
	switch strings.ToLower(settings.Database.Type) {
	case "sqlite":
		return &SQLiteStore{
			Settings: settings,
		}
	case "mysql":
		return &MySQLStore{
			Settings: settings,
		}
	default:
		return nil
	}
}

// Close closes the database connection, releasing the underlying sql.DB pool.
func (ds *DataStore) Close() error {
	if ds.DB == nil {
		return nil
	}

	sqlDB, err := ds.DB.DB()
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get-sql-db").
			Build()
	}

	if err := sqlDB.Close(); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "close-database").
			Build()
	}

	return nil
}
