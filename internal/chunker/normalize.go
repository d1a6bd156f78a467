// Package chunker implements text normalization and the sliding-window
// splitter used before embedding. Both steps are pure functions: identical
// input and parameters always produce identical output.
package chunker

import (
	"regexp"
	"strings"
)

var (
	pageNumberLine = regexp.MustCompile(`^\s*\d+\s*$`)
	pageLabelLine  = regexp.MustCompile(`(?i)^\s*Page\s+\d+\s*$`)
	dashedPageLine = regexp.MustCompile(`^\s*-\s*\d+\s*-\s*$`)
	manyNewlines   = regexp.MustCompile(`\n{3,}`)
	manySpaces     = regexp.MustCompile(` {2,}`)
)

// Normalize cleans common document noise before splitting: isolated
// page-number lines are dropped, runs of 3+ newlines collapse to 2, runs of
// 2+ spaces collapse to 1, and the whole text is trimmed.
func Normalize(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if pageNumberLine.MatchString(line) || pageLabelLine.MatchString(line) || dashedPageLine.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}

	text = strings.Join(kept, "\n")
	text = manyNewlines.ReplaceAllString(text, "\n\n")
	text = manySpaces.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
