// Package serve implements the serve command, which boots every backend
// and runs the HTTP API until a shutdown signal arrives.
package serve

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/soundprint/soundprint/internal/api"
	"github.com/soundprint/soundprint/internal/audio"
	"github.com/soundprint/soundprint/internal/buildinfo"
	"github.com/soundprint/soundprint/internal/chromaprint"
	"github.com/soundprint/soundprint/internal/conf"
	"github.com/soundprint/soundprint/internal/datastore"
	"github.com/soundprint/soundprint/internal/dedup"
	"github.com/soundprint/soundprint/internal/embedding"
	"github.com/soundprint/soundprint/internal/ingest"
	"github.com/soundprint/soundprint/internal/logging"
	"github.com/soundprint/soundprint/internal/observability"
	"github.com/soundprint/soundprint/internal/olaf"
	"github.com/soundprint/soundprint/internal/search"
	"github.com/soundprint/soundprint/internal/server"
	"github.com/soundprint/soundprint/internal/vecstore"
)

// ensureCollectionTimeout bounds the startup attempt to create the vector
// collection. The store retries lazily on first use, so a slow or absent
// Qdrant only degrades the vibe lane.
const ensureCollectionTimeout = 10 * time.Second

// Command creates the serve command.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the audio identification API server",
		Long:  "Boot the track store, fingerprint index, embedding model and vector store, then serve the identification API until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), settings, build)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.HTTP.Host, "host", viper.GetString("http.host"), "Interface to bind the API server to")
	cmd.Flags().StringVar(&settings.HTTP.Port, "port", viper.GetString("http.port"), "Port to listen on")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}

// runServer assembles the service and blocks until a signal or a fatal
// server error. Backends that only degrade a feature log and continue;
// anything the API cannot run without fails startup.
func runServer(ctx context.Context, settings *conf.Settings, build *buildinfo.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := datastore.New(settings)
	if err := store.Open(); err != nil {
		return fmt.Errorf("failed to open datastore: %w", err)
	}
	defer closeQuietly("datastore", store.Close)

	decoder, err := audio.NewDecoder(settings)
	if err != nil {
		return fmt.Errorf("failed to initialize audio decoder: %w", err)
	}
	prober, err := audio.NewProber(settings)
	if err != nil {
		return fmt.Errorf("failed to initialize stream prober: %w", err)
	}

	index := olaf.NewIndex(settings)

	vectors, err := vecstore.New(settings)
	if err != nil {
		return fmt.Errorf("failed to connect to vector store: %w", err)
	}
	defer closeQuietly("vector store", vectors.Close)

	ensureCtx, cancelEnsure := context.WithTimeout(ctx, ensureCollectionTimeout)
	if err := vectors.EnsureCollection(ensureCtx); err != nil {
		logging.Warn("vector collection not ready, vibe search degraded until it is", "error", err)
	}
	cancelEnsure()

	// A missing model path disables the vibe lane; a configured model
	// that fails to load is an operator error worth failing on.
	var embedder embedding.Embedder
	if settings.Embedding.ModelPath != "" {
		tflEmbedder, err := embedding.NewTFLiteEmbedder(settings)
		if err != nil {
			return fmt.Errorf("failed to load embedding model: %w", err)
		}
		embedder = tflEmbedder
	} else {
		logging.Warn("no embedding model configured, vibe search disabled")
	}
	embedService := embedding.NewService(embedder)

	pipeline := ingest.NewPipeline(settings, store, decoder, prober, index, embedService, vectors)

	exact := search.NewExactLane(index, store)
	vibe := search.NewVibeLane(embedService, vectors, store, settings)
	orchestrator := search.NewOrchestrator(exact, vibe, settings)

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	orchestrator.SetMetrics(metrics.Search)
	pipeline.SetMetrics(metrics.Ingest)
	embedService.SetMetrics(metrics.Embedding)

	srv := server.New(settings)
	controller, err := api.New(srv.Echo, store, settings, decoder, orchestrator, pipeline,
		index, vectors, log.Default(), api.WithMetrics(metrics), api.WithBuildInfo(build))
	if err != nil {
		return fmt.Errorf("failed to initialize API: %w", err)
	}

	errChan := srv.Start()
	logging.Info("API server listening",
		"addr", srv.Addr(),
		"version", build.GetVersion(),
		"vibe_enabled", embedService.Enabled())

	select {
	case <-ctx.Done():
		logging.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server failed: %w", err)
	}

	// Signal handling is released so a second interrupt kills the
	// process instead of waiting for the drain.
	stop()

	if err := srv.Shutdown(context.Background()); err != nil {
		logging.Error("graceful shutdown failed", "error", err)
	}
	controller.Shutdown()
	closeServiceLoggers()

	logging.Info("server stopped")
	return nil
}

func closeQuietly(name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logging.Error("close failed", "component", name, "error", err)
	}
}

// closeServiceLoggers releases the per-package log files.
func closeServiceLoggers() {
	closers := map[string]func() error{
		"audio":       audio.CloseLogger,
		"chromaprint": chromaprint.CloseLogger,
		"datastore":   datastore.CloseLogger,
		"dedup":       dedup.CloseLogger,
		"embedding":   embedding.CloseLogger,
		"ingest":      ingest.CloseLogger,
		"olaf":        olaf.CloseLogger,
		"search":      search.CloseLogger,
		"vecstore":    vecstore.CloseLogger,
	}
	for name, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("Failed to close %s logger: %v", name, err)
		}
	}
}
