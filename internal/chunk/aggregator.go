package chunk

import (
	"fmt"
	"sort"
	"strings"
)

// Aggregate merges per-chunk results into one coherent report. It is
// order-independent: results may arrive in any order and are restored to
// chunk index order first.
//
// The overall score averages successful chunks that produced a score;
// chunks without a score are excluded from the average, never counted as
// zero. When any chunk failed, a partial-results banner is prepended to the
// summary. Total failure still yields a well-formed result.
func Aggregate(results []Result) Aggregated {
	ordered := make([]Result, len(results))
	copy(ordered, results)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Index < ordered[j].Index
	})

	agg := Aggregated{
		TotalChunks: len(ordered),
		Findings:    []Finding{},
	}

	var scoreSum float64
	var scoreCount int
	var summaries []string

	for _, r := range ordered {
		if !r.OK {
			agg.FailedChunks++
			continue
		}
		agg.SuccessfulChunks++

		if r.Score != nil {
			scoreSum += *r.Score
			scoreCount++
		}
		if r.Summary != "" {
			summaries = append(summaries, summaryHeading(r)+r.Summary)
		}

		for _, f := range r.Findings {
			f.Chunk = r.Index
			if f.File == "" && len(r.Files) > 0 {
				f.File = strings.Join(r.Files, ", ")
			}
			agg.Findings = append(agg.Findings, f)
		}
	}

	if scoreCount > 0 {
		avg := scoreSum / float64(scoreCount)
		agg.Score = &avg
	}

	var sb strings.Builder
	if agg.FailedChunks > 0 {
		sb.WriteString(banner(agg))
		if len(summaries) > 0 {
			sb.WriteString("\n\n")
		}
	}
	sb.WriteString(strings.Join(summaries, "\n\n"))
	agg.Summary = sb.String()

	return agg
}

func summaryHeading(r Result) string {
	if len(r.Files) == 0 {
		return fmt.Sprintf("[chunk %d] ", r.Index)
	}
	return fmt.Sprintf("[chunk %d: %s] ", r.Index, strings.Join(r.Files, ", "))
}

func banner(agg Aggregated) string {
	if agg.SuccessfulChunks == 0 {
		return fmt.Sprintf("WARNING: analysis failed for all %d chunks; no results are available.",
			agg.TotalChunks)
	}
	return fmt.Sprintf("WARNING: partial results. %d of %d chunks failed; findings below cover the successful chunks only.",
		agg.FailedChunks, agg.TotalChunks)
}
