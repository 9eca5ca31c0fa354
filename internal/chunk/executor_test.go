package chunk

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wosledon/AIReview-sub002/internal/logging"
)

func makeChunks(n int) []Chunk {
	chunks := make([]Chunk, n)
	for i := range chunks {
		chunks[i] = Chunk{
			Index:   i,
			Content: fmt.Sprintf("chunk %d", i),
			Files:   []string{fmt.Sprintf("file%d.go", i)},
		}
	}
	return chunks
}

func TestExecutorRunEmpty(t *testing.T) {
	e := NewExecutor(3, logging.Nop())
	if got := e.Run(context.Background(), nil, nil); got != nil {
		t.Errorf("Run(nil) = %v, want nil", got)
	}
}

func TestExecutorRunAllSucceed(t *testing.T) {
	e := NewExecutor(3, logging.Nop())
	chunks := makeChunks(8)

	results := e.Run(context.Background(), chunks, func(ctx context.Context, c Chunk) (*Analysis, error) {
		score := float64(c.Index)
		return &Analysis{Score: &score, Summary: fmt.Sprintf("summary %d", c.Index)}, nil
	})

	if len(results) != len(chunks) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(chunks))
	}
	for i, r := range results {
		if r.Index != i {
			t.Errorf("results[%d].Index = %d, results not in chunk order", i, r.Index)
		}
		if !r.OK {
			t.Errorf("results[%d] failed: %s", i, r.Error)
		}
		if r.Score == nil || *r.Score != float64(i) {
			t.Errorf("results[%d].Score = %v", i, r.Score)
		}
	}
}

func TestExecutorConcurrencyBound(t *testing.T) {
	const limit = 3
	e := NewExecutor(limit, logging.Nop())
	chunks := makeChunks(12)

	var inflight, peak int32
	results := e.Run(context.Background(), chunks, func(ctx context.Context, c Chunk) (*Analysis, error) {
		n := atomic.AddInt32(&inflight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inflight, -1)
		return &Analysis{}, nil
	})

	if len(results) != len(chunks) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(chunks))
	}
	if peak > limit {
		t.Errorf("peak concurrency = %d, limit is %d", peak, limit)
	}
}

func TestExecutorFailureIsolation(t *testing.T) {
	e := NewExecutor(2, logging.Nop())
	chunks := makeChunks(6)

	results := e.Run(context.Background(), chunks, func(ctx context.Context, c Chunk) (*Analysis, error) {
		switch c.Index {
		case 1:
			return nil, errors.New("upstream rejected the request")
		case 3:
			panic("callback blew up")
		case 4:
			return nil, nil // no error but no result either
		}
		return &Analysis{Summary: "ok"}, nil
	})

	want := map[int]bool{0: true, 1: false, 2: true, 3: false, 4: false, 5: true}
	for i, r := range results {
		if r.OK != want[i] {
			t.Errorf("results[%d].OK = %v, want %v (error: %s)", i, r.OK, want[i], r.Error)
		}
		if !r.OK && r.Error == "" {
			t.Errorf("results[%d] failed without an error message", i)
		}
	}
}

func TestExecutorCanceledContext(t *testing.T) {
	e := NewExecutor(2, logging.Nop())
	chunks := makeChunks(4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := e.Run(ctx, chunks, func(ctx context.Context, c Chunk) (*Analysis, error) {
		return &Analysis{}, nil
	})

	if len(results) != len(chunks) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(chunks))
	}
	for i, r := range results {
		if r.OK {
			t.Errorf("results[%d] succeeded under a canceled context", i)
		}
	}
}

func TestExecutorDefaultsConcurrency(t *testing.T) {
	e := NewExecutor(0, logging.Nop())
	if e.maxConcurrent != DefaultMaxConcurrent {
		t.Errorf("maxConcurrent = %d, want %d", e.maxConcurrent, DefaultMaxConcurrent)
	}
}
