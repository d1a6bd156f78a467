package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_StripsPageNoise(t *testing.T) {
	input := "Title line\n 12 \nPage 3\n- 5 -\nBody   text  here\n\n\n\nNext paragraph"

	got := Normalize(input)

	assert.NotContains(t, got, "Page 3")
	assert.NotContains(t, got, "- 5 -")
	assert.NotContains(t, got, "12")
	assert.NotContains(t, got, "\n\n\n")
	assert.Contains(t, got, "Body text here")
	assert.Equal(t, strings.TrimSpace(got), got)
}

func TestNormalize_Deterministic(t *testing.T) {
	input := "a  b\n\n\n\nc\n 7 \nd"
	assert.Equal(t, Normalize(input), Normalize(input))
}

func TestNormalize_EmptyAfterCleanup(t *testing.T) {
	assert.Equal(t, "", Normalize("  \n 1 \nPage 2\n  \n"))
}

func TestNewSplitter_RejectsBadParams(t *testing.T) {
	_, err := NewSplitter(0, 0)
	assert.Error(t, err)

	_, err = NewSplitter(100, 100)
	assert.Error(t, err)

	_, err = NewSplitter(100, -1)
	assert.Error(t, err)

	_, err = NewSplitter(100, 99)
	assert.NoError(t, err)
}

func TestSplit_EmptyInput(t *testing.T) {
	s, err := NewSplitter(100, 10)
	require.NoError(t, err)

	assert.Empty(t, s.Split(""))
}

func TestSplit_ShortInputSingleChunk(t *testing.T) {
	s, err := NewSplitter(100, 10)
	require.NoError(t, err)

	chunks := s.Split("short text")
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0])
}

func TestSplit_RespectsMaxSize(t *testing.T) {
	s, err := NewSplitter(50, 10)
	require.NoError(t, err)

	text := strings.Repeat("word ", 100)
	for _, c := range s.Split(text) {
		assert.LessOrEqual(t, len([]rune(c)), 50)
	}
}

func TestSplit_PrefersParagraphBoundary(t *testing.T) {
	s, err := NewSplitter(40, 5)
	require.NoError(t, err)

	text := "first paragraph here.\n\nsecond paragraph follows with more text"
	chunks := s.Split(text)

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.True(t, strings.HasSuffix(chunks[0], "\n\n"), "first chunk should end at the paragraph break, got %q", chunks[0])
}

func TestSplit_HardCutsOversizedRun(t *testing.T) {
	s, err := NewSplitter(10, 2)
	require.NoError(t, err)

	// A single run longer than the window has no boundary; hard cut applies.
	chunks := s.Split(strings.Repeat("x", 25))
	require.NotEmpty(t, chunks)
	assert.Equal(t, 10, len([]rune(chunks[0])))
}

func TestSplit_CoverageReconstructsInput(t *testing.T) {
	const overlap = 7
	s, err := NewSplitter(30, overlap)
	require.NoError(t, err)

	text := "alpha beta gamma delta\nepsilon zeta eta theta iota kappa\n\nlambda mu nu xi omicron pi rho sigma tau"
	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)

	rebuilt := chunks[0]
	for _, c := range chunks[1:] {
		runes := []rune(c)
		require.GreaterOrEqual(t, len(runes), overlap)
		// Adjacent chunks share exactly the declared overlap.
		assert.Equal(t, string([]rune(rebuilt)[len([]rune(rebuilt))-overlap:]), string(runes[:overlap]))
		rebuilt += string(runes[overlap:])
	}
	assert.Equal(t, text, rebuilt)
}

func TestSplit_TwoChunkScenario(t *testing.T) {
	s, err := NewSplitter(2000, 400)
	require.NoError(t, err)

	text := strings.Repeat("a", 2800)
	chunks := s.Split(text)

	require.Len(t, chunks, 2)
	assert.Equal(t, 2000, len(chunks[0]))
	assert.Equal(t, 1200, len(chunks[1])) // 2800 - (2000 - 400)
}

func TestSplit_Deterministic(t *testing.T) {
	s, err := NewSplitter(64, 16)
	require.NoError(t, err)

	text := strings.Repeat("lorem ipsum dolor sit amet ", 40)
	assert.Equal(t, s.Split(text), s.Split(text))
}
