package chunker

import (
	"fmt"
	"strings"
)

// Splitter cuts text into overlapping pieces no longer than MaxSize
// characters. It prefers to break at the largest available semantic
// boundary: paragraph break, then line break, then word space, then a hard
// character cut.
type Splitter struct {
	MaxSize int
	Overlap int
}

// NewSplitter validates the size parameters. Overlap must be smaller than
// MaxSize or the window could never advance.
func NewSplitter(maxSize, overlap int) (*Splitter, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("max size must be positive, got %d", maxSize)
	}
	if overlap < 0 || overlap >= maxSize {
		return nil, fmt.Errorf("overlap must satisfy 0 <= overlap < max size, got overlap=%d max=%d", overlap, maxSize)
	}
	return &Splitter{MaxSize: maxSize, Overlap: overlap}, nil
}

// Split cuts text into ordered pieces. Consecutive pieces share exactly
// Overlap characters, so concatenating pieces after discounting the overlap
// reconstructs the input with no dropped spans. Empty input yields an empty
// result; callers must treat that as an empty-content condition rather than
// a successful zero-chunk ingest.
func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for {
		end := start + s.MaxSize
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			return chunks
		}

		// Not the final piece: seek a boundary inside the window. A cut at
		// or before the overlap would stall the window, so such boundaries
		// are ignored and the next coarser strategy applies.
		if cut := boundaryCut(runes[start:end], s.Overlap); cut > 0 {
			end = start + cut
		}

		chunks = append(chunks, string(runes[start:end]))
		start = end - s.Overlap
	}
}

// boundaryCut returns the cut position (exclusive, relative to window) after
// the best semantic boundary in the window, or 0 when only a hard cut works.
// A run longer than the window has no boundary at all; the hard cut is
// allowed and must not fail.
func boundaryCut(window []rune, minCut int) int {
	text := string(window)

	if i := strings.LastIndex(text, "\n\n"); i >= 0 {
		if cut := runeLen(text[:i]) + 2; cut > minCut {
			return cut
		}
	}
	if i := strings.LastIndexByte(text, '\n'); i >= 0 {
		if cut := runeLen(text[:i]) + 1; cut > minCut {
			return cut
		}
	}
	if i := strings.LastIndexByte(text, ' '); i >= 0 {
		if cut := runeLen(text[:i]) + 1; cut > minCut {
			return cut
		}
	}
	return 0
}

func runeLen(s string) int {
	return len([]rune(s))
}
