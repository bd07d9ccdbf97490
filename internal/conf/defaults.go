// conf/defaults.go default configuration values
package conf

import (
	"github.com/spf13/viper"
)

// setDefaultConfig sets the default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	// Main configuration
	viper.SetDefault("main.name", "soundprint")
	viper.SetDefault("main.loglevel", "info")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/soundprint.log")
	viper.SetDefault("main.log.maxsize", 100)
	viper.SetDefault("main.log.maxage", 30)
	viper.SetDefault("main.log.maxbackups", 10)

	// HTTP server configuration
	viper.SetDefault("http.host", "0.0.0.0")
	viper.SetDefault("http.port", "17010")
	viper.SetDefault("http.corsorigins", []string{"http://localhost:17000"})

	// Database configuration
	viper.SetDefault("database.type", "sqlite")
	viper.SetDefault("database.sqlite.path", "soundprint.db")
	viper.SetDefault("database.mysql.username", "soundprint")
	viper.SetDefault("database.mysql.password", "soundprint")
	viper.SetDefault("database.mysql.database", "soundprint")
	viper.SetDefault("database.mysql.host", "localhost")
	viper.SetDefault("database.mysql.port", "3306")

	// Audio blob storage
	viper.SetDefault("storage.root", "./data")

	// Decode tooling
	viper.SetDefault("ffmpeg.path", "ffmpeg")
	viper.SetDefault("ffmpeg.ffprobepath", "ffprobe")

	// Olaf fingerprint index
	viper.SetDefault("olaf.path", "olaf_c")
	viper.SetDefault("olaf.dbpath", "./data/olaf_db")

	// Chromaprint near-duplicate detection
	viper.SetDefault("chromaprint.path", "fpcalc")
	viper.SetDefault("chromaprint.threshold", 0.85)
	viper.SetDefault("chromaprint.timeout", "30s")

	// Embedding model
	viper.SetDefault("embedding.modelpath", "")
	viper.SetDefault("embedding.model", "clap-htsat-large")
	viper.SetDefault("embedding.dim", 512)
	viper.SetDefault("embedding.threads", 0)

	// Qdrant vector database
	viper.SetDefault("qdrant.host", "localhost")
	viper.SetDefault("qdrant.port", 6334)
	viper.SetDefault("qdrant.apikey", "")
	viper.SetDefault("qdrant.usetls", false)
	viper.SetDefault("qdrant.collection", "audio_embeddings")
	viper.SetDefault("qdrant.searchlimit", 50)

	// Search orchestrator
	viper.SetDefault("search.vibethreshold", 0.60)
	viper.SetDefault("search.exacttimeout", "3s")
	viper.SetDefault("search.vibetimeout", "4s")
	viper.SetDefault("search.maxuploadsize", 10*1024*1024)

	// Ingestion pipeline
	viper.SetDefault("ingest.maxuploadsize", 50*1024*1024)
	viper.SetDefault("ingest.minduration", "3s")
	viper.SetDefault("ingest.maxduration", "30m")

	// Security
	viper.SetDefault("security.adminkey", "")
}
