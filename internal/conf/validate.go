// conf/validate.go

package conf

import (
	"fmt"
	"strconv"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateHTTPSettings(&settings.HTTP); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateDatabaseSettings(&settings.Database); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateEmbeddingSettings(&settings.Embedding); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateQdrantSettings(&settings.Qdrant); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateSearchSettings(&settings.Search); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateIngestSettings(&settings.Ingest); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateChromaprintSettings(&settings.Chromaprint); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// validateHTTPSettings validates the HTTP server settings
func validateHTTPSettings(settings *HTTPSettings) error {
	if settings.Port == "" {
		return fmt.Errorf("http port is required")
	}
	port, err := strconv.Atoi(settings.Port)
	if err != nil {
		return fmt.Errorf("http port must be numeric, got %q", settings.Port)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// validateDatabaseSettings validates the database selection
func validateDatabaseSettings(settings *DatabaseSettings) error {
	switch strings.ToLower(settings.Type) {
	case "sqlite":
		if settings.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required for sqlite")
		}
	case "mysql":
		if settings.MySQL.Database == "" || settings.MySQL.Host == "" {
			return fmt.Errorf("database.mysql.database and database.mysql.host are required for mysql")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", settings.Type)
	}
	return nil
}

// validateEmbeddingSettings validates the embedding model settings
func validateEmbeddingSettings(settings *EmbeddingSettings) error {
	var errs []string

	if settings.Dim <= 0 {
		errs = append(errs, "embedding dim must be positive")
	}

	if settings.Threads < 0 {
		errs = append(errs, "embedding threads must be at least 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("embedding settings errors: %v", errs)
	}
	return nil
}

// validateQdrantSettings validates the vector database settings
func validateQdrantSettings(settings *QdrantSettings) error {
	var errs []string

	if settings.Port < 1 || settings.Port > 65535 {
		errs = append(errs, "qdrant port must be between 1 and 65535")
	}

	if settings.Collection == "" {
		errs = append(errs, "qdrant collection must not be empty")
	}

	if settings.SearchLimit <= 0 {
		errs = append(errs, "qdrant searchlimit must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("qdrant settings errors: %v", errs)
	}
	return nil
}

// validateSearchSettings validates the search orchestrator settings
func validateSearchSettings(settings *SearchSettings) error {
	var errs []string

	if settings.VibeThreshold < 0 || settings.VibeThreshold > 1 {
		errs = append(errs, "search vibethreshold must be between 0 and 1")
	}

	if settings.ExactTimeout <= 0 {
		errs = append(errs, "search exacttimeout must be positive")
	}

	if settings.VibeTimeout <= 0 {
		errs = append(errs, "search vibetimeout must be positive")
	}

	if settings.MaxUploadSize <= 0 {
		errs = append(errs, "search maxuploadsize must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("search settings errors: %v", errs)
	}
	return nil
}

// validateIngestSettings validates the ingestion settings
func validateIngestSettings(settings *IngestSettings) error {
	var errs []string

	if settings.MaxUploadSize <= 0 {
		errs = append(errs, "ingest maxuploadsize must be positive")
	}

	if settings.MinDuration <= 0 {
		errs = append(errs, "ingest minduration must be positive")
	}

	if settings.MinDuration >= settings.MaxDuration {
		errs = append(errs, "ingest minduration must be less than maxduration")
	}

	if len(errs) > 0 {
		return fmt.Errorf("ingest settings errors: %v", errs)
	}
	return nil
}

// validateChromaprintSettings validates the near-duplicate detection settings
func validateChromaprintSettings(settings *ChromaprintSettings) error {
	var errs []string

	if settings.Threshold < 0 || settings.Threshold > 1 {
		errs = append(errs, "chromaprint threshold must be between 0 and 1")
	}

	if settings.Timeout <= 0 {
		errs = append(errs, "chromaprint timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("chromaprint settings errors: %v", errs)
	}
	return nil
}
