package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/soundprint/soundprint/cmd/ingest"
	"github.com/soundprint/soundprint/cmd/serve"
	"github.com/soundprint/soundprint/cmd/version"
	"github.com/soundprint/soundprint/internal/buildinfo"
	"github.com/soundprint/soundprint/internal/conf"
	"github.com/soundprint/soundprint/internal/logging"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "soundprint",
		Short: "Soundprint audio identification CLI",
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
	}

	subcommands := []*cobra.Command{
		serve.Command(settings, build),
		ingest.Command(settings),
		version.Command(build),
	}

	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Sync the settings struct with viper's values so command-line
		// arguments take precedence over config file values.
		if err := viper.Unmarshal(settings); err != nil {
			return fmt.Errorf("error syncing flags: %w", err)
		}
		if settings.Debug {
			logging.SetLevel(slog.LevelDebug)
		}
		return nil
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
