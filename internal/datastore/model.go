// model.go this code defines the data model for the application
package datastore

import "time"

// Track represents a single ingested audio file and its index state.
// Metadata fields extracted from tags or ffprobe are pointers: a nil value
// means extraction did not produce the field, which is distinct from an
// empty or zero value.
type Track struct {
	ID     string  `gorm:"type:char(36);primaryKey"`
	Title  *string `gorm:"size:512;index:idx_tracks_title"`
	Artist *string `gorm:"size:512;index:idx_tracks_artist"`
	Album  *string `gorm:"size:512"`
	Genre  *string `gorm:"size:128;index:idx_tracks_genre"`
	Year   *int

	DurationSeconds float64 `gorm:"not null"`
	SampleRate      *int
	Channels        *int
	Bitrate         *int
	Format          *string `gorm:"size:32"`

	FileHashSHA256 string `gorm:"column:file_hash_sha256;type:char(64);uniqueIndex;not null"`
	FileSizeBytes  int64
	StoragePath    string `gorm:"size:1024;not null"`

	// Chromaprint holds the raw fpcalc fingerprint used for near-duplicate
	// comparison against new uploads. ChromaprintDuration records how many
	// seconds of audio the fingerprint covers; both fields are set together
	// or not at all.
	Chromaprint         *string  `gorm:"type:text"`
	ChromaprintDuration *float64 `gorm:"index:idx_tracks_chromaprint_duration"`

	OlafIndexed    bool `gorm:"default:false"`
	EmbeddingModel *string
	EmbeddingDim   *int
	ChunkCount     int `gorm:"default:0"`

	IngestedAt time.Time `gorm:"autoCreateTime;index:idx_tracks_ingested_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}
