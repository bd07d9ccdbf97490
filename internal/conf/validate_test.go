package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validSettings returns a settings struct that passes validation, for tests
// to break one field at a time.
func validSettings() *Settings {
	s := &Settings{}
	s.Main.Name = "soundprint"
	s.HTTP.Host = "0.0.0.0"
	s.HTTP.Port = "17010"
	s.Database.Type = "sqlite"
	s.Database.SQLite.Path = "soundprint.db"
	s.Storage.Root = "./data"
	s.Chromaprint.Threshold = 0.85
	s.Chromaprint.Timeout = 30 * time.Second
	s.Embedding.Dim = 512
	s.Qdrant.Port = 6334
	s.Qdrant.Collection = "audio_embeddings"
	s.Qdrant.SearchLimit = 50
	s.Search.VibeThreshold = 0.6
	s.Search.ExactTimeout = 3 * time.Second
	s.Search.VibeTimeout = 4 * time.Second
	s.Search.MaxUploadSize = 10 * 1024 * 1024
	s.Ingest.MaxUploadSize = 50 * 1024 * 1024
	s.Ingest.MinDuration = 3 * time.Second
	s.Ingest.MaxDuration = 30 * time.Minute
	return s
}

func TestValidateSettingsValid(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateSettings(validSettings()))
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{
			name:    "empty http port",
			mutate:  func(s *Settings) { s.HTTP.Port = "" },
			wantErr: "http port is required",
		},
		{
			name:    "non numeric http port",
			mutate:  func(s *Settings) { s.HTTP.Port = "http" },
			wantErr: "http port must be numeric",
		},
		{
			name:    "out of range http port",
			mutate:  func(s *Settings) { s.HTTP.Port = "70000" },
			wantErr: "http port must be between",
		},
		{
			name:    "unknown database type",
			mutate:  func(s *Settings) { s.Database.Type = "postgres" },
			wantErr: "unsupported database type",
		},
		{
			name:    "sqlite without path",
			mutate:  func(s *Settings) { s.Database.SQLite.Path = "" },
			wantErr: "database.sqlite.path is required",
		},
		{
			name: "mysql without host",
			mutate: func(s *Settings) {
				s.Database.Type = "mysql"
				s.Database.MySQL.Database = "soundprint"
				s.Database.MySQL.Host = ""
			},
			wantErr: "database.mysql.database and database.mysql.host are required",
		},
		{
			name:    "non positive embedding dim",
			mutate:  func(s *Settings) { s.Embedding.Dim = 0 },
			wantErr: "embedding dim must be positive",
		},
		{
			name:    "negative embedding threads",
			mutate:  func(s *Settings) { s.Embedding.Threads = -1 },
			wantErr: "embedding threads must be at least 0",
		},
		{
			name:    "qdrant port out of range",
			mutate:  func(s *Settings) { s.Qdrant.Port = 0 },
			wantErr: "qdrant port must be between",
		},
		{
			name:    "empty qdrant collection",
			mutate:  func(s *Settings) { s.Qdrant.Collection = "" },
			wantErr: "qdrant collection must not be empty",
		},
		{
			name:    "vibe threshold above one",
			mutate:  func(s *Settings) { s.Search.VibeThreshold = 1.5 },
			wantErr: "search vibethreshold must be between 0 and 1",
		},
		{
			name:    "non positive exact timeout",
			mutate:  func(s *Settings) { s.Search.ExactTimeout = 0 },
			wantErr: "search exacttimeout must be positive",
		},
		{
			name:    "non positive vibe timeout",
			mutate:  func(s *Settings) { s.Search.VibeTimeout = -time.Second },
			wantErr: "search vibetimeout must be positive",
		},
		{
			name: "min duration at least max duration",
			mutate: func(s *Settings) {
				s.Ingest.MinDuration = time.Hour
				s.Ingest.MaxDuration = time.Minute
			},
			wantErr: "ingest minduration must be less than maxduration",
		},
		{
			name:    "chromaprint threshold above one",
			mutate:  func(s *Settings) { s.Chromaprint.Threshold = 2 },
			wantErr: "chromaprint threshold must be between 0 and 1",
		},
		{
			name:    "non positive chromaprint timeout",
			mutate:  func(s *Settings) { s.Chromaprint.Timeout = 0 },
			wantErr: "chromaprint timeout must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			settings := validSettings()
			tt.mutate(settings)

			err := ValidateSettings(settings)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			var ve ValidationError
			require.ErrorAs(t, err, &ve)
			assert.NotEmpty(t, ve.Errors)
		})
	}
}

func TestValidationErrorCollectsAllSections(t *testing.T) {
	t.Parallel()

	settings := validSettings()
	settings.HTTP.Port = ""
	settings.Embedding.Dim = -1
	settings.Qdrant.Collection = ""

	err := ValidateSettings(settings)
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 3)
}
