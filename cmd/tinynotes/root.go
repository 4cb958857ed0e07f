package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	verbose    bool
	jsonLogs   bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "tinynotes",
	Short: "In-memory notes service with idempotent writes and per-client rate limiting",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{Level: level}
		var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
		if jsonLogs {
			h = slog.NewJSONHandler(os.Stderr, opts)
		}
		slog.SetDefault(slog.New(h))
	},
	SilenceUsage: true,
}

// Execute é chamado por main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Log as JSON instead of text")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default $TINYNOTES_CONFIG)")
}

// resolveConfigPath usa a flag e, sem ela, TINYNOTES_CONFIG.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return os.Getenv("TINYNOTES_CONFIG")
}
