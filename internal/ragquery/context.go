package ragquery

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/devkraft/ragline/internal/schema"
)

// trailerPattern matches the source citation trailer at the end of an
// answer, e.g. "SOURCES: 1, 3".
var trailerPattern = regexp.MustCompile(`(?i)\n*SOURCES:\s*[0-9,\s]+\s*$`)

// thinkPattern captures a model's reasoning block when the model emits one.
var thinkPattern = regexp.MustCompile(`(?s)<think>(.*?)</think>`)

const promptTemplate = `You are a helpful assistant answering questions about the user's documents.

Use only the numbered documents below to answer. If the documents do not contain the answer, say so instead of guessing.

%s

After your answer, finish with a new line containing exactly "SOURCES: " followed by the comma-separated numbers of the documents you actually used, for example "SOURCES: 1, 3". If you did not use any document, finish with "SOURCES: 0".

Question: %s`

// contextWindow owns the retrieved hits for one question and keeps their
// search order, so citation numbers in the answer stay meaningful.
type contextWindow struct {
	hits []schema.RetrievalHit
}

// render numbers the documents the way the prompt refers to them, starting
// at 1.
func (w *contextWindow) render() string {
	var sb strings.Builder
	for i, hit := range w.hits {
		fmt.Fprintf(&sb, "[Document %d]\n%s\n\n", i+1, hit.Text)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// prompt assembles the grounded question for the generator.
func (w *contextWindow) prompt(question string) string {
	return fmt.Sprintf(promptTemplate, w.render(), question)
}

// parseTrailer strips the citation trailer from an answer and returns the
// cited document numbers. Numbers outside 1..k are dropped, so a trailer
// citing only invalid documents parses as found-but-empty. found is false
// when no trailer is present at all; only then may callers fall back to
// positional attribution.
func parseTrailer(text string, k int) (clean string, indices []int, found bool) {
	loc := trailerPattern.FindStringIndex(text)
	if loc == nil {
		return strings.TrimSpace(text), nil, false
	}

	clean = strings.TrimSpace(text[:loc[0]])
	trailer := text[loc[0]:loc[1]]
	digits := trailer[strings.Index(strings.ToUpper(trailer), "SOURCES:")+len("SOURCES:"):]

	seen := make(map[int]bool)
	for _, field := range strings.Split(digits, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil || n < 1 || n > k || seen[n] {
			continue
		}
		seen[n] = true
		indices = append(indices, n)
	}
	return clean, indices, true
}

// stripTrailer removes the citation trailer, leaving the remaining text
// byte-identical to the input prefix so streamed offsets stay valid.
func stripTrailer(text string) string {
	if loc := trailerPattern.FindStringIndex(text); loc != nil {
		return strings.TrimRight(text[:loc[0]], " \r\n")
	}
	return text
}

// extractThinking splits a reasoning block out of the answer when present.
func extractThinking(text string) (answer, thinking string) {
	m := thinkPattern.FindStringSubmatch(text)
	if m == nil {
		return text, ""
	}
	answer = strings.TrimSpace(thinkPattern.ReplaceAllString(text, ""))
	return answer, strings.TrimSpace(m[1])
}

// resolve maps cited document numbers back to the hits they refer to. A
// missing trailer falls back to the top documents; a present trailer is
// taken at its word, even when it cites nothing valid.
func (w *contextWindow) resolve(indices []int, found bool, maxSources int) []schema.SourceAttribution {
	if !found {
		n := maxSources
		if len(w.hits) < n {
			n = len(w.hits)
		}
		indices = indices[:0]
		for i := 1; i <= n; i++ {
			indices = append(indices, i)
		}
	}
	if len(indices) > maxSources {
		indices = indices[:maxSources]
	}

	var sources []schema.SourceAttribution
	for _, n := range indices {
		hit := w.hits[n-1]
		sources = append(sources, schema.SourceAttribution{
			Header:   hit.Meta.Header,
			Page:     hit.Meta.Page,
			Filename: hit.Meta.Filename,
			Text:     hit.Text,
			Ordinal:  hit.Meta.Ordinal,
		})
	}
	return sources
}

// safeFlushLen reports how much of a streaming buffer can be emitted
// without risking that a citation trailer, or the beginning of one split
// across chunks, leaks to the client.
func safeFlushLen(buf string) int {
	upper := strings.ToUpper(buf)
	if i := strings.LastIndex(upper, "SOURCES:"); i >= 0 {
		// Hold back the whitespace run leading into the trailer too, so a
		// stripped trailer leaves no dangling newlines.
		for i > 0 && (buf[i-1] == '\n' || buf[i-1] == '\r' || buf[i-1] == ' ') {
			i--
		}
		return i
	}

	// The buffer may end mid-sentinel.
	const sentinel = "SOURCES:"
	for n := len(sentinel) - 1; n > 0; n-- {
		if strings.HasSuffix(upper, sentinel[:n]) {
			i := len(buf) - n
			for i > 0 && (buf[i-1] == '\n' || buf[i-1] == '\r' || buf[i-1] == ' ') {
				i--
			}
			return i
		}
	}
	return len(buf)
}
