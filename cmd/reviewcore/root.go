package main

import (
	"github.com/spf13/cobra"

	"github.com/wosledon/AIReview-sub002/internal/config"
	"github.com/wosledon/AIReview-sub002/internal/logging"
)

var (
	// configPath is the CLI --config flag value
	configPath string
	// formatFlag is the CLI --format flag value
	formatFlag string
)

var rootCmd = &cobra.Command{
	Use:   "reviewcore",
	Short: "Operational tooling for the analysis execution core",
	Long: `reviewcore inspects and maintains the asynchronous analysis execution core:
the cache/lock backend, the chunking pipeline, and the durable execution history.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to reviewcore.yaml (default: built-in defaults plus REVIEWCORE_* env)")
	rootCmd.PersistentFlags().StringVar(&formatFlag, "format", "human",
		"Output format (human, json, yaml)")
}

// loadConfig loads configuration from the --config flag and environment.
func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// newLogger builds a logger from the loaded configuration.
func newLogger(cfg *config.Config) *logging.Logger {
	return logging.New(logging.Config{
		Format: logging.Format(cfg.Logging.Format),
		Level:  logging.ParseLevel(cfg.Logging.Level),
	})
}
