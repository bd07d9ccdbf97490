package main

import (
	"fmt"
	"os"

	"github.com/soundprint/soundprint/cmd"
	"github.com/soundprint/soundprint/internal/buildinfo"
	"github.com/soundprint/soundprint/internal/conf"
	"github.com/soundprint/soundprint/internal/logging"
)

// Build metadata injected via ldflags:
//
//	go build -ldflags "-X main.version=v1.2.3 -X main.gitSHA=$(git rev-parse --short HEAD) -X main.buildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version   = "dev"
	gitSHA    = "unknown"
	buildDate = "unknown"
)

func main() {
	logging.Init()

	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logging.SetLevel(logging.ParseLevel(settings.Main.LogLevel))

	build := &buildinfo.Context{
		Version:   version,
		GitSHA:    gitSHA,
		BuildDate: buildDate,
	}

	rootCmd := cmd.RootCommand(settings, build)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
