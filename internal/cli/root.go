// Package cli provides the command-line interface for podsearch.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/raphaelgruber/podsearch/internal/app"
	"github.com/raphaelgruber/podsearch/internal/config"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose    bool
	configPath string

	// Global config and application, set up before each command
	cfg           config.Config
	application   *app.App
	logger        *slog.Logger
	closeLogFiles func() error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "podsearch",
	Short: "Semantic search and chat over podcast transcripts",
	Long: `Podsearch indexes podcast transcripts and finds episodes by meaning.

Each episode is ranked by how well its title, opening, best matching passage
and closing match your query. Ask follow-up questions about any episode and
get answers grounded in its transcript.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup for commands that never touch the store
		switch cmd.Name() {
		case "version", "help", "completion", "__complete":
			return nil
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.EnsureDirs(); err != nil {
			return err
		}

		// Keep the terminal quiet unless asked; the log file gets the same records
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger, closeLogFiles = config.SetupLogger(cfg.LogFile, level, cfg.LogLevel)
		slog.SetDefault(logger)

		application, err = app.Open(context.Background(), cfg, logger)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if application != nil {
			if err := application.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
			}
		}
		if closeLogFiles != nil {
			_ = closeLogFiles()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $XDG_CONFIG_HOME/podsearch/config.toml)")

	// Add subcommands
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}
