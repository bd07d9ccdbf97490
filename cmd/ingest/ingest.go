// Package ingest implements the ingest command, which runs the ingestion
// pipeline over a file or directory without going through the HTTP API.
package ingest

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soundprint/soundprint/internal/audio"
	"github.com/soundprint/soundprint/internal/conf"
	"github.com/soundprint/soundprint/internal/datastore"
	"github.com/soundprint/soundprint/internal/embedding"
	"github.com/soundprint/soundprint/internal/ingest"
	"github.com/soundprint/soundprint/internal/logging"
	"github.com/soundprint/soundprint/internal/olaf"
	"github.com/soundprint/soundprint/internal/vecstore"
)

const ensureCollectionTimeout = 10 * time.Second

// Command creates the ingest command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [path]",
		Short: "Ingest an audio file or directory into the library",
		Long:  "Run the ingestion pipeline over a single audio file or recursively over a directory, printing a summary report.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), settings, args[0])
		},
	}
}

// runIngest boots the pipeline backends and processes the target path.
// A report with errors makes the command fail so scripts notice.
func runIngest(ctx context.Context, settings *conf.Settings, target string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("cannot access %s: %w", target, err)
	}

	store := datastore.New(settings)
	if err := store.Open(); err != nil {
		return fmt.Errorf("failed to open datastore: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error("failed to close datastore", "error", err)
		}
	}()

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
	defer func() {
		if err := vectors.Close(); err != nil {
			logging.Error("failed to close vector store", "error", err)
		}
	}()

	ensureCtx, cancelEnsure := context.WithTimeout(ctx, ensureCollectionTimeout)
	if err := vectors.EnsureCollection(ensureCtx); err != nil {
		logging.Warn("vector collection not ready, embeddings will not be stored", "error", err)
	}
	cancelEnsure()

	var embedder embedding.Embedder
	if settings.Embedding.ModelPath != "" {
		tflEmbedder, err := embedding.NewTFLiteEmbedder(settings)
		if err != nil {
			return fmt.Errorf("failed to load embedding model: %w", err)
		}
		embedder = tflEmbedder
	} else {
		logging.Warn("no embedding model configured, tracks will not be embedded")
	}

	pipeline := ingest.NewPipeline(settings, store, decoder, prober, index,
		embedding.NewService(embedder), vectors)

	var report *ingest.Report
	if info.IsDir() {
		report, err = pipeline.IngestDirectory(ctx, target)
		if err != nil {
			return err
		}
	} else {
		report = singleFileReport(pipeline.IngestFile(ctx, target, filepath.Base(target)))
		report.Failures = prefixFailurePaths(report.Failures, target)
	}

	printReport(report)

	if report.Errors > 0 {
		return fmt.Errorf("%d of %d files failed", report.Errors, report.Total)
	}
	return nil
}

// singleFileReport folds one pipeline result into the report shape the
// directory path produces, so both print identically.
func singleFileReport(result *ingest.Result, err error) *ingest.Report {
	report := &ingest.Report{Total: 1}
	if err != nil {
		report.Errors = 1
		report.Failures = []ingest.Failure{{Reason: err.Error()}}
		return report
	}

	switch result.Status {
	case ingest.StatusIngested:
		report.Ingested = 1
	case ingest.StatusDuplicate:
		report.Duplicates = 1
	case ingest.StatusSkipped:
		report.Skipped = 1
	default:
		report.Errors = 1
		report.Failures = []ingest.Failure{{Reason: result.Err.Error()}}
	}
	return report
}

func prefixFailurePaths(failures []ingest.Failure, path string) []ingest.Failure {
	for i := range failures {
		failures[i].Path = path
	}
	return failures
}

// printReport writes the summary in the fixed-width layout operators
// already parse.
func printReport(report *ingest.Report) {
	separator := strings.Repeat("=", 60)

	fmt.Printf("\n%s\n", separator)
	fmt.Println("Ingestion Report")
	fmt.Println(separator)
	fmt.Printf("Total files:  %d\n", report.Total)
	fmt.Printf("Ingested:     %d\n", report.Ingested)
	fmt.Printf("Duplicates:   %d\n", report.Duplicates)
	fmt.Printf("Skipped:      %d\n", report.Skipped)
	fmt.Printf("Errors:       %d\n", report.Errors)

	if len(report.Failures) > 0 {
		fmt.Println("\nFailed files:")
		for _, failure := range report.Failures {
			fmt.Printf("  - %s: %s\n", failure.Path, failure.Reason)
		}
	}

	fmt.Println(separator)
}
