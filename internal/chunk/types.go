// Package chunk partitions oversized analysis payloads into budget-sized
// chunks, dispatches them under a bounded concurrency limit, and merges the
// per-chunk results into one report.
package chunk

import "context"

// Chunk is one budget-sized slice of an analysis payload.
type Chunk struct {
	// Index is the chunk's position in the original payload.
	Index int `json:"index"`
	// Content is the exact byte slice of the payload this chunk covers.
	Content string `json:"content"`
	// Files lists the files whose diffs this chunk contains.
	Files []string `json:"files,omitempty"`
	// EstimatedTokens is the token estimate for Content.
	EstimatedTokens int `json:"estimatedTokens"`
	// Continuation marks a piece of a single file too large for the budget.
	Continuation bool `json:"continuation,omitempty"`
	// Part is the 1-based piece number within a split file.
	Part int `json:"part,omitempty"`
}

// Finding is one issue reported by the analysis callback.
type Finding struct {
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Severity string `json:"severity,omitempty"`
	Message  string `json:"message"`
	// Chunk is filled by the aggregator with the originating chunk index.
	Chunk int `json:"chunk"`
}

// Analysis is the structured payload an analysis callback returns for one
// chunk. The core imposes no format beyond these fields.
type Analysis struct {
	// Score is the chunk's numeric score, when the callback produced one.
	// Chunks without a score are excluded from the aggregate average.
	Score    *float64  `json:"score,omitempty"`
	Summary  string    `json:"summary,omitempty"`
	Findings []Finding `json:"findings,omitempty"`
}

// Callback analyzes one chunk. Returning an error (or panicking) fails that
// chunk only; siblings are unaffected.
type Callback func(ctx context.Context, c Chunk) (*Analysis, error)

// Result is the outcome for exactly one dispatched chunk.
type Result struct {
	Index        int       `json:"index"`
	OK           bool      `json:"ok"`
	Files        []string  `json:"files,omitempty"`
	Continuation bool      `json:"continuation,omitempty"`
	Score        *float64  `json:"score,omitempty"`
	Summary      string    `json:"summary,omitempty"`
	Findings     []Finding `json:"findings,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// Aggregated is the merged report over all chunks.
type Aggregated struct {
	// Score is the average over successful score-bearing chunks, or nil
	// when no chunk produced a score.
	Score            *float64  `json:"score,omitempty"`
	Summary          string    `json:"summary"`
	Findings         []Finding `json:"findings"`
	TotalChunks      int       `json:"totalChunks"`
	SuccessfulChunks int       `json:"successfulChunks"`
	FailedChunks     int       `json:"failedChunks"`
}
