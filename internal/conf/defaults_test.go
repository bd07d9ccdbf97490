package conf

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultConfigIsValid ensures the shipped defaults describe a working
// configuration without any config file present.
func TestDefaultConfigIsValid(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	setDefaultConfig()

	settings := &Settings{}
	require.NoError(t, viper.Unmarshal(settings))
	require.NoError(t, ValidateSettings(settings))

	assert.Equal(t, "soundprint", settings.Main.Name)
	assert.Equal(t, "info", settings.Main.LogLevel)
	assert.True(t, settings.Main.Log.Enabled)

	assert.Equal(t, "0.0.0.0", settings.HTTP.Host)
	assert.Equal(t, "17010", settings.HTTP.Port)

	assert.Equal(t, "sqlite", settings.Database.Type)
	assert.Equal(t, "soundprint.db", settings.Database.SQLite.Path)

	assert.Equal(t, "./data", settings.Storage.Root)
	assert.Equal(t, "olaf_c", settings.Olaf.Path)
	assert.Equal(t, "./data/olaf_db", settings.Olaf.DBPath)

	assert.Equal(t, "clap-htsat-large", settings.Embedding.Model)
	assert.Equal(t, 512, settings.Embedding.Dim)
	assert.Equal(t, 0, settings.Embedding.Threads)

	assert.Equal(t, "localhost", settings.Qdrant.Host)
	assert.Equal(t, 6334, settings.Qdrant.Port)
	assert.Equal(t, "audio_embeddings", settings.Qdrant.Collection)
	assert.Equal(t, 50, settings.Qdrant.SearchLimit)

	assert.InDelta(t, 0.60, settings.Search.VibeThreshold, 1e-9)
	assert.Equal(t, 3*time.Second, settings.Search.ExactTimeout)
	assert.Equal(t, 4*time.Second, settings.Search.VibeTimeout)
	assert.Equal(t, int64(10*1024*1024), settings.Search.MaxUploadSize)

	assert.Equal(t, int64(50*1024*1024), settings.Ingest.MaxUploadSize)
	assert.Equal(t, 3*time.Second, settings.Ingest.MinDuration)
	assert.Equal(t, 30*time.Minute, settings.Ingest.MaxDuration)

	assert.InDelta(t, 0.85, settings.Chromaprint.Threshold, 1e-9)
	assert.Equal(t, 30*time.Second, settings.Chromaprint.Timeout)

	assert.Empty(t, settings.Security.AdminKey)
}

// TestEnvironmentOverrides verifies SOUNDPRINT_ prefixed variables override
// config values through the key replacer.
func TestEnvironmentOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("SOUNDPRINT_QDRANT_HOST", "qdrant.internal")
	t.Setenv("SOUNDPRINT_HTTP_PORT", "9000")
	t.Setenv("SOUNDPRINT_SECURITY_ADMINKEY", "hunter2")

	setDefaultConfig()
	require.NoError(t, configureEnvironmentVariables())

	settings := &Settings{}
	require.NoError(t, viper.Unmarshal(settings))

	assert.Equal(t, "qdrant.internal", settings.Qdrant.Host)
	assert.Equal(t, "9000", settings.HTTP.Port)
	assert.Equal(t, "hunter2", settings.Security.AdminKey)
}

// TestEnvironmentValidation verifies invalid values in validated variables
// are reported instead of silently breaking at runtime.
func TestEnvironmentValidation(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("SOUNDPRINT_QDRANT_PORT", "not-a-port")
	t.Setenv("SOUNDPRINT_DATABASE_TYPE", "mongodb")

	setDefaultConfig()
	err := configureEnvironmentVariables()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SOUNDPRINT_QDRANT_PORT")
	assert.Contains(t, err.Error(), "SOUNDPRINT_DATABASE_TYPE")
}
