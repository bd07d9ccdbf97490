// config.go: settings struct for the Soundprint service plus functions to
// load them from config file and environment.
package conf

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// LogConfig defines file logging and rotation settings.
type LogConfig struct {
	Enabled    bool   // true to write logs to a file
	Path       string // log file path
	MaxSize    int    // maximum size in megabytes before rotation
	MaxAge     int    // maximum age in days before deletion
	MaxBackups int    // maximum number of rotated files to keep
}

// MainSettings contains the application-wide settings.
type MainSettings struct {
	Name     string    // application name used in logs
	LogLevel string    // minimum log level: trace, debug, info, warn, error
	Log      LogConfig // file logging settings
}

// HTTPSettings contains settings for the HTTP API server.
type HTTPSettings struct {
	Host        string   // interface to bind to
	Port        string   // port to listen on
	CorsOrigins []string // allowed CORS origins
}

// DatabaseSettings selects and configures the track metadata store.
type DatabaseSettings struct {
	Type   string // "sqlite" or "mysql"
	SQLite struct {
		Path string // path to the sqlite database file
	}
	MySQL struct {
		Username string
		Password string
		Database string
		Host     string
		Port     string
	}
}

// StorageSettings configures the audio blob store.
type StorageSettings struct {
	Root string // root directory for stored audio files
}

// FFmpegSettings points at the decode tooling.
type FFmpegSettings struct {
	Path        string // path to ffmpeg binary
	FfprobePath string // path to ffprobe binary
}

// OlafSettings configures the acoustic fingerprint index.
type OlafSettings struct {
	Path   string // path to olaf_c binary
	DBPath string // directory for the olaf LMDB database
}

// ChromaprintSettings configures near-duplicate detection.
type ChromaprintSettings struct {
	Path      string        // path to fpcalc binary
	Threshold float64       // fingerprint similarity above which tracks are duplicates
	Timeout   time.Duration // per-invocation timeout for fpcalc
}

// EmbeddingSettings configures the audio embedding model.
type EmbeddingSettings struct {
	ModelPath string // path to the TFLite model file, empty disables the vibe lane
	Model     string // model identifier reported in search results
	Dim       int    // embedding dimensionality
	Threads   int    // TFLite CPU threads, 0 for automatic
}

// QdrantSettings configures the vector database connection.
type QdrantSettings struct {
	Host        string // qdrant host
	Port        int    // qdrant gRPC port
	APIKey      string // optional API key
	UseTLS      bool   // true to connect over TLS
	Collection  string // collection name for audio embeddings
	SearchLimit int    // maximum chunk hits fetched per vibe query
}

// SearchSettings tunes the search orchestrator.
type SearchSettings struct {
	VibeThreshold float64       // minimum aggregated score for vibe matches
	ExactTimeout  time.Duration // budget for the exact fingerprint lane
	VibeTimeout   time.Duration // budget for the vibe embedding lane
	MaxUploadSize int64         // maximum search clip upload in bytes
}

// IngestSettings tunes the ingestion pipeline.
type IngestSettings struct {
	MaxUploadSize int64         // maximum ingest upload in bytes
	MinDuration   time.Duration // shortest accepted track duration
	MaxDuration   time.Duration // longest accepted track duration
}

// SecuritySettings holds authentication material for mutating endpoints.
type SecuritySettings struct {
	AdminKey string // shared admin key, empty locks admin endpoints
}

// Settings is the root configuration for the service.
type Settings struct {
	Debug bool // true to enable debug logging

	Main        MainSettings
	HTTP        HTTPSettings
	Database    DatabaseSettings
	Storage     StorageSettings
	FFmpeg      FFmpegSettings
	Olaf        OlafSettings
	Chromaprint ChromaprintSettings
	Embedding   EmbeddingSettings
	Qdrant      QdrantSettings
	Search      SearchSettings
	Ingest      IngestSettings
	Security    SecuritySettings
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a new
// Settings instance and installs it as the process-wide configuration.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	// Initialize viper and read config
	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	// Unmarshal the config into settings
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	// Validate settings
	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	// Get OS specific config paths
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	// Assign config paths to Viper
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Set default values for each configuration parameter
	// function defined in defaults.go
	setDefaultConfig()

	// Set up environment variable overrides
	if err := configureEnvironmentVariables(); err != nil {
		return fmt.Errorf("error configuring environment variables: %w", err)
	}

	// Read configuration file, a missing file is not an error as defaults
	// and environment variables fully describe a working configuration
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, initializing it if necessary
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			_, err := Load()
			if err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}
