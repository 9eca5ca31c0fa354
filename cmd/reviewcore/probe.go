package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wosledon/AIReview-sub002/internal/cache"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe the cache/lock backend",
	Long: `Probe opens the configured cache backend, reports which mode was selected
(flagging degraded local fallback), and round-trips a sentinel key.

Examples:
  reviewcore probe
  reviewcore probe --config reviewcore.yaml --format json`,
	Run: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

type probeReport struct {
	Mode        string `json:"mode" yaml:"mode"`
	Degraded    bool   `json:"degraded" yaml:"degraded"`
	RoundTripMs int64  `json:"roundTripMs" yaml:"roundTripMs"`
}

func runProbe(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := cache.Open(ctx, cfg.Cache, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	key := "reviewcore:probe:" + uuid.New().String()
	start := time.Now()
	if err := store.Set(ctx, key, "ok", time.Minute); err != nil {
		fmt.Fprintf(os.Stderr, "Error: sentinel write failed: %v\n", err)
		os.Exit(1)
	}
	if _, ok, err := store.Get(ctx, key); err != nil || !ok {
		fmt.Fprintf(os.Stderr, "Error: sentinel read failed: %v\n", err)
		os.Exit(1)
	}
	_, _ = store.Remove(ctx, key)

	report := probeReport{
		Mode:        string(store.Mode()),
		Degraded:    store.Mode().Degraded(),
		RoundTripMs: time.Since(start).Milliseconds(),
	}

	switch formatFlag {
	case "json":
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(out))
	case "yaml":
		out, _ := yaml.Marshal(report)
		fmt.Print(string(out))
	default:
		fmt.Printf("backend mode: %s\n", report.Mode)
		if report.Degraded {
			fmt.Println("WARNING: running in degraded local-fallback mode; cross-instance guarantees are disabled")
		}
		fmt.Printf("round trip: %dms\n", report.RoundTripMs)
	}
}
