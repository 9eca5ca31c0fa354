package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wosledon/AIReview-sub002/internal/chunk"
)

var splitCmd = &cobra.Command{
	Use:   "split <diff-file>",
	Short: "Split a diff into budget-sized chunks",
	Long: `Split runs the chunk splitter on a unified diff file and prints per-chunk
statistics. Useful for checking how a review payload will be partitioned
before it is dispatched to the analysis service.

Examples:
  reviewcore split review.diff
  reviewcore split review.diff --format json`,
	Args: cobra.ExactArgs(1),
	Run:  runSplit,
}

func init() {
	rootCmd.AddCommand(splitCmd)
}

type splitReport struct {
	TotalChars      int              `json:"totalChars" yaml:"totalChars"`
	EstimatedTokens int              `json:"estimatedTokens" yaml:"estimatedTokens"`
	FitsSingleCall  bool             `json:"fitsSingleCall" yaml:"fitsSingleCall"`
	Chunks          []splitChunkInfo `json:"chunks" yaml:"chunks"`
}

type splitChunkInfo struct {
	Index           int      `json:"index" yaml:"index"`
	Chars           int      `json:"chars" yaml:"chars"`
	EstimatedTokens int      `json:"estimatedTokens" yaml:"estimatedTokens"`
	Files           []string `json:"files,omitempty" yaml:"files,omitempty"`
	Continuation    bool     `json:"continuation,omitempty" yaml:"continuation,omitempty"`
	Part            int      `json:"part,omitempty" yaml:"part,omitempty"`
}

func runSplit(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to read %s: %v\n", args[0], err)
		os.Exit(1)
	}

	budget := chunk.Budget{
		CharsPerToken:     cfg.Chunking.CharsPerToken,
		MaxTokensPerChunk: cfg.Chunking.MaxTokensPerChunk,
	}
	chunks := chunk.NewSplitter(budget).SplitDiff(string(data))

	report := splitReport{
		TotalChars:      len(data),
		EstimatedTokens: budget.EstimateTokens(string(data)),
		FitsSingleCall:  budget.Fits(string(data)),
	}
	for _, c := range chunks {
		report.Chunks = append(report.Chunks, splitChunkInfo{
			Index:           c.Index,
			Chars:           len(c.Content),
			EstimatedTokens: c.EstimatedTokens,
			Files:           c.Files,
			Continuation:    c.Continuation,
			Part:            c.Part,
		})
	}

	switch formatFlag {
	case "json":
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(out))
	case "yaml":
		out, _ := yaml.Marshal(report)
		fmt.Print(string(out))
	default:
		fmt.Printf("payload: %d chars, ~%d tokens", report.TotalChars, report.EstimatedTokens)
		if report.FitsSingleCall {
			fmt.Println(" (fits a single call, chunking would be bypassed)")
		} else {
			fmt.Println()
		}
		fmt.Printf("chunks: %d\n", len(report.Chunks))
		for _, c := range report.Chunks {
			line := fmt.Sprintf("  [%d] %d chars, ~%d tokens", c.Index, c.Chars, c.EstimatedTokens)
			if c.Continuation {
				line += fmt.Sprintf(" (continuation part %d)", c.Part)
			}
			if len(c.Files) > 0 {
				line += " " + strings.Join(c.Files, ", ")
			}
			fmt.Println(line)
		}
	}
}
