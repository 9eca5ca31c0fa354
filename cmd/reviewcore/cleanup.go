package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wosledon/AIReview-sub002/internal/history"
)

var cleanupOlderThan string

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Prune terminal executions from the history store",
	Long: `Cleanup removes completed and failed execution records older than the
retention horizon from the durable history database.

Examples:
  reviewcore cleanup
  reviewcore cleanup --older-than 72h`,
	Run: runCleanup,
}

func init() {
	cleanupCmd.Flags().StringVar(&cleanupOlderThan, "older-than", "",
		"Retention horizon override (e.g. 72h; default: execution.retentionHours)")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg)

	olderThan := cfg.Execution.Retention()
	if cleanupOlderThan != "" {
		d, err := time.ParseDuration(cleanupOlderThan)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid --older-than %q: %v\n", cleanupOlderThan, err)
			os.Exit(1)
		}
		olderThan = d
	}

	store, err := history.Open(cfg.History.Path, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	removed, err := store.Cleanup(ctx, olderThan)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("removed %d execution records older than %s\n", removed, olderThan)
}
