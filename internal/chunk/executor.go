package chunk

import (
	"context"
	"fmt"
	"sync"

	"github.com/wosledon/AIReview-sub002/internal/logging"
)

// DefaultMaxConcurrent is the default cap on in-flight analysis calls. The
// upstream reasoning service enforces its own rate limits, so the cap is a
// hard ceiling, not a hint.
const DefaultMaxConcurrent = 3

// Executor dispatches chunks to an analysis callback under a bounded
// concurrency limit.
type Executor struct {
	maxConcurrent int
	logger        *logging.Logger
}

// NewExecutor creates an executor with the given concurrency cap.
func NewExecutor(maxConcurrent int, logger *logging.Logger) *Executor {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Executor{
		maxConcurrent: maxConcurrent,
		logger:        logger,
	}
}

// Run dispatches every chunk and returns one Result per chunk, in original
// index order, regardless of completion order. A callback error or panic
// fails that chunk only and never aborts siblings; Run returns only once
// every chunk has a result.
func (e *Executor) Run(ctx context.Context, chunks []Chunk, callback Callback) []Result {
	if len(chunks) == 0 {
		return nil
	}

	results := make([]Result, len(chunks))
	sem := make(chan struct{}, e.maxConcurrent)
	var wg sync.WaitGroup

	for i := range chunks {
		wg.Add(1)
		go func(slot int, c Chunk) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[slot] = failedResult(c, ctx.Err())
				return
			}

			results[slot] = e.runOne(ctx, c, callback)
		}(i, chunks[i])
	}

	wg.Wait()
	return results
}

// runOne invokes the callback for a single chunk, converting errors and
// panics into a failed Result.
func (e *Executor) runOne(ctx context.Context, c Chunk, callback Callback) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Analysis callback panicked", logging.Fields{
				"chunk": c.Index,
				"panic": fmt.Sprint(r),
			})
			res = failedResult(c, fmt.Errorf("analysis callback panicked: %v", r))
		}
	}()

	if err := ctx.Err(); err != nil {
		return failedResult(c, err)
	}

	analysis, err := callback(ctx, c)
	if err != nil {
		e.logger.Warn("Chunk analysis failed", logging.Fields{
			"chunk": c.Index,
			"files": c.Files,
			"error": err.Error(),
		})
		return failedResult(c, err)
	}
	if analysis == nil {
		return failedResult(c, fmt.Errorf("analysis callback returned no result"))
	}

	return Result{
		Index:        c.Index,
		OK:           true,
		Files:        c.Files,
		Continuation: c.Continuation,
		Score:        analysis.Score,
		Summary:      analysis.Summary,
		Findings:     analysis.Findings,
	}
}

func failedResult(c Chunk, err error) Result {
	return Result{
		Index:        c.Index,
		OK:           false,
		Files:        c.Files,
		Continuation: c.Continuation,
		Error:        err.Error(),
	}
}
