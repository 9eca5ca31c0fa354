package chunk

import (
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"
)

// fileBoundaryMarker starts each per-file section of a unified git diff.
const fileBoundaryMarker = "diff --git "

// Splitter partitions payloads into file-boundary-aligned, budget-sized
// chunks. Chunk contents are exact substrings of the input: concatenating
// them in index order reproduces the original payload byte for byte.
type Splitter struct {
	budget Budget
}

// NewSplitter creates a Splitter with the given budget.
func NewSplitter(budget Budget) *Splitter {
	return &Splitter{budget: budget.normalized()}
}

// section is one file's portion of a diff (or the preamble before the
// first file marker).
type section struct {
	content string
	file    string
}

// SplitDiff partitions a concatenated per-file diff at file boundaries.
// A chunk is closed whenever adding the next file would exceed the budget;
// chunks never grow across a boundary once full. A single file larger than
// the whole budget is split further into pieces marked as continuations of
// the same filename. Empty input produces zero chunks.
func (s *Splitter) SplitDiff(diff string) []Chunk {
	if diff == "" {
		return nil
	}

	maxChars := s.budget.MaxChars()
	sections := splitFileSections(diff)

	var chunks []Chunk
	var pending []section
	pendingLen := 0

	flush := func() {
		if pendingLen == 0 {
			return
		}
		var sb strings.Builder
		sb.Grow(pendingLen)
		var files []string
		for _, sec := range pending {
			sb.WriteString(sec.content)
			if sec.file != "" {
				files = append(files, sec.file)
			}
		}
		chunks = append(chunks, Chunk{Content: sb.String(), Files: files})
		pending = pending[:0]
		pendingLen = 0
	}

	for _, sec := range sections {
		if len(sec.content) > maxChars {
			// This file alone exceeds the budget: flush what we have and
			// emit the file as explicitly marked continuation pieces.
			flush()
			pieces := splitByLines(sec.content, maxChars)
			for i, piece := range pieces {
				c := Chunk{Content: piece, Continuation: true, Part: i + 1}
				if sec.file != "" {
					c.Files = []string{sec.file}
				}
				chunks = append(chunks, c)
			}
			continue
		}

		if pendingLen > 0 && pendingLen+len(sec.content) > maxChars {
			flush()
		}
		pending = append(pending, sec)
		pendingLen += len(sec.content)
	}
	flush()

	for i := range chunks {
		chunks[i].Index = i
		chunks[i].EstimatedTokens = s.budget.EstimateTokens(chunks[i].Content)
	}
	return chunks
}

// SplitText partitions raw (non-diff) text into budget-sized pieces at line
// boundaries. Empty input produces zero chunks.
func (s *Splitter) SplitText(text string) []Chunk {
	if text == "" {
		return nil
	}

	pieces := splitByLines(text, s.budget.MaxChars())
	chunks := make([]Chunk, 0, len(pieces))
	for i, piece := range pieces {
		c := Chunk{
			Index:           i,
			Content:         piece,
			EstimatedTokens: s.budget.EstimateTokens(piece),
		}
		if len(pieces) > 1 {
			c.Part = i + 1
			c.Continuation = i > 0
		}
		chunks = append(chunks, c)
	}
	return chunks
}

// splitFileSections slices the diff at "diff --git " boundaries. Content
// before the first marker (if any) becomes an unnamed leading section.
// The sections concatenate back to the exact input.
func splitFileSections(diff string) []section {
	var boundaries []int
	offset := 0
	rest := diff
	for {
		i := strings.Index(rest, fileBoundaryMarker)
		if i < 0 {
			break
		}
		abs := offset + i
		if abs == 0 || diff[abs-1] == '\n' {
			boundaries = append(boundaries, abs)
		}
		offset = abs + len(fileBoundaryMarker)
		rest = diff[offset:]
	}

	if len(boundaries) == 0 {
		return []section{{content: diff}}
	}

	var sections []section
	if boundaries[0] > 0 {
		sections = append(sections, section{content: diff[:boundaries[0]]})
	}
	for i, start := range boundaries {
		end := len(diff)
		if i+1 < len(boundaries) {
			end = boundaries[i+1]
		}
		content := diff[start:end]
		sections = append(sections, section{
			content: content,
			file:    sectionFileName(content),
		})
	}
	return sections
}

// sectionFileName extracts the file a diff section touches, preferring the
// post-change path.
func sectionFileName(content string) string {
	if fd, err := godiff.ParseFileDiff([]byte(content)); err == nil {
		if name := cleanPath(fd.NewName); name != "" {
			return name
		}
		return cleanPath(fd.OrigName)
	}

	// Header-only fallback for sections go-diff cannot parse (binary
	// patches, truncated hunks).
	header, _, _ := strings.Cut(content, "\n")
	fields := strings.Fields(strings.TrimPrefix(header, fileBoundaryMarker))
	if len(fields) >= 2 {
		return cleanPath(fields[1])
	}
	if len(fields) == 1 {
		return cleanPath(fields[0])
	}
	return ""
}

// cleanPath removes the a/ or b/ prefix from git diff paths.
func cleanPath(path string) string {
	if path == "" || path == "/dev/null" {
		return ""
	}
	if strings.HasPrefix(path, "a/") || strings.HasPrefix(path, "b/") {
		return path[2:]
	}
	return path
}

// splitByLines cuts content into pieces no larger than maxChars, breaking
// at line boundaries. A single line longer than maxChars is hard-split.
// The pieces concatenate back to the exact input.
func splitByLines(content string, maxChars int) []string {
	if len(content) <= maxChars {
		return []string{content}
	}

	var pieces []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			pieces = append(pieces, cur.String())
			cur.Reset()
		}
	}

	rest := content
	for len(rest) > 0 {
		nl := strings.IndexByte(rest, '\n')
		var line string
		if nl < 0 {
			line = rest
			rest = ""
		} else {
			line = rest[:nl+1]
			rest = rest[nl+1:]
		}

		if len(line) > maxChars {
			flush()
			for len(line) > maxChars {
				pieces = append(pieces, line[:maxChars])
				line = line[maxChars:]
			}
			if line != "" {
				cur.WriteString(line)
			}
			continue
		}

		if cur.Len()+len(line) > maxChars {
			flush()
		}
		cur.WriteString(line)
	}
	flush()

	return pieces
}
