package ragquery

import (
	"context"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devkraft/ragline/internal/chathistory"
	"github.com/devkraft/ragline/internal/llm"
	"github.com/devkraft/ragline/internal/schema"
	"github.com/devkraft/ragline/pkg/logger"
)

func TestParseTrailer(t *testing.T) {
	clean, indices, found := parseTrailer("The answer.\n\nSOURCES: 2, 4", 4)
	assert.True(t, found)
	assert.Equal(t, "The answer.", clean)
	assert.Equal(t, []int{2, 4}, indices)
}

func TestParseTrailerCaseInsensitive(t *testing.T) {
	clean, indices, found := parseTrailer("Answer.\nsources: 1", 4)
	assert.True(t, found)
	assert.Equal(t, "Answer.", clean)
	assert.Equal(t, []int{1}, indices)
}

func TestParseTrailerOutOfRangeIsFoundButEmpty(t *testing.T) {
	_, indices, found := parseTrailer("Answer.\nSOURCES: 9", 4)
	assert.True(t, found)
	assert.Empty(t, indices)
}

func TestParseTrailerZeroSentinel(t *testing.T) {
	clean, indices, found := parseTrailer("I don't know.\nSOURCES: 0", 4)
	assert.True(t, found)
	assert.Equal(t, "I don't know.", clean)
	assert.Empty(t, indices)
}

func TestParseTrailerMissing(t *testing.T) {
	clean, indices, found := parseTrailer("Just an answer.", 4)
	assert.False(t, found)
	assert.Equal(t, "Just an answer.", clean)
	assert.Empty(t, indices)
}

func TestParseTrailerOnlyAtEnd(t *testing.T) {
	text := "SOURCES: 1 is a strange way to start.\nBut fine."
	clean, _, found := parseTrailer(text, 4)
	assert.False(t, found)
	assert.Equal(t, text, clean)
}

func TestParseTrailerDeduplicates(t *testing.T) {
	_, indices, _ := parseTrailer("A.\nSOURCES: 2, 2, 1", 4)
	assert.Equal(t, []int{2, 1}, indices)
}

func testHits(n int) []schema.RetrievalHit {
	hits := make([]schema.RetrievalHit, n)
	for i := range hits {
		hits[i] = schema.RetrievalHit{
			ID:   string(rune('a' + i)),
			Text: strings.Repeat("x", i+1),
			Meta: schema.ChunkMeta{Header: "H", Page: i + 1, Ordinal: i, Filename: "doc.pdf"},
		}
	}
	return hits
}

func TestResolveMapsIndicesToHits(t *testing.T) {
	w := &contextWindow{hits: testHits(4)}

	sources := w.resolve([]int{2, 4}, true, 3)
	require.Len(t, sources, 2)
	assert.Equal(t, 2, sources[0].Page)
	assert.Equal(t, 4, sources[1].Page)
}

func TestResolveCapsAttributions(t *testing.T) {
	w := &contextWindow{hits: testHits(4)}

	sources := w.resolve([]int{1, 2, 3, 4}, true, 3)
	assert.Len(t, sources, 3)
}

func TestResolveFallsBackWhenNoTrailer(t *testing.T) {
	w := &contextWindow{hits: testHits(4)}
	sources := w.resolve(nil, false, 3)
	require.Len(t, sources, 3)
	assert.Equal(t, 1, sources[0].Page)

	small := &contextWindow{hits: testHits(2)}
	assert.Len(t, small.resolve(nil, false, 3), 2)
}

func TestResolveEmptyButFoundStaysEmpty(t *testing.T) {
	w := &contextWindow{hits: testHits(4)}
	assert.Empty(t, w.resolve(nil, true, 3))
}

func TestExtractThinking(t *testing.T) {
	answer, thinking := extractThinking("<think>let me see</think>The answer.")
	assert.Equal(t, "The answer.", answer)
	assert.Equal(t, "let me see", thinking)

	answer, thinking = extractThinking("No reasoning here.")
	assert.Equal(t, "No reasoning here.", answer)
	assert.Empty(t, thinking)
}

func TestSafeFlushLen(t *testing.T) {
	assert.Equal(t, 11, safeFlushLen("plain text."))
	// A complete trailer start is held back along with its leading newlines.
	assert.Equal(t, 7, safeFlushLen("answer.\n\nSOURCES: 1"))
	// A partial sentinel at the end is held back.
	assert.Equal(t, 7, safeFlushLen("answer.\nSOURC"))
	assert.Equal(t, 7, safeFlushLen("answer.\nS"))
	// An S that continues as ordinary text is not a sentinel.
	assert.Equal(t, len("answer.\nSo anyway"), safeFlushLen("answer.\nSo anyway"))
}

type fakeRetriever struct {
	hits          []schema.RetrievalHit
	durableCalled bool
	fastCalled    bool
}

func (f *fakeRetriever) SearchDurable(context.Context, []float32, int) ([]schema.RetrievalHit, error) {
	f.durableCalled = true
	return f.hits, nil
}

func (f *fakeRetriever) SearchFast(context.Context, []float32, int) ([]schema.RetrievalHit, error) {
	f.fastCalled = true
	return f.hits, nil
}

type fakeProvider struct{ dim int }

func (f *fakeProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

func (f *fakeProvider) EmbedQuery(context.Context, string) ([]float32, error) {
	return make([]float32, f.dim), nil
}

func (f *fakeProvider) Dim() int { return f.dim }

type scriptedGenerator struct {
	answer string
	chunks []string
	prompt string
}

func (g *scriptedGenerator) Generate(_ context.Context, _ []llm.Message, prompt string) (string, error) {
	g.prompt = prompt
	return g.answer, nil
}

func (g *scriptedGenerator) GenerateStream(ctx context.Context, _ []llm.Message, prompt string) (<-chan llm.Chunk, error) {
	g.prompt = prompt
	ch := make(chan llm.Chunk)
	go func() {
		defer close(ch)
		for _, c := range g.chunks {
			select {
			case ch <- llm.Chunk{Text: c}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func newTestEngine(t *testing.T, ret *fakeRetriever, gen llm.Generator) (*Engine, chathistory.Store) {
	t.Helper()
	history, err := chathistory.NewFileStore(t.TempDir())
	require.NoError(t, err)
	e := NewEngine(ret, &fakeProvider{dim: 8}, &fakeProvider{dim: 2}, gen, gen, history, Options{}, logger.New("test"))
	return e, history
}

func TestAnswerResolvesCitations(t *testing.T) {
	ret := &fakeRetriever{hits: testHits(4)}
	gen := &scriptedGenerator{answer: "Grounded answer.\n\nSOURCES: 2, 4"}
	e, history := newTestEngine(t, ret, gen)

	ans, err := e.Answer(context.Background(), SpaceRemote, "", "what?")
	require.NoError(t, err)
	assert.NotEmpty(t, ans.ChatID)
	assert.Equal(t, "Grounded answer.", ans.Text)
	require.Len(t, ans.Sources, 2)
	assert.Equal(t, 2, ans.Sources[0].Page)
	assert.Equal(t, 4, ans.Sources[1].Page)

	// The prompt numbers documents in search order.
	assert.Contains(t, gen.prompt, "[Document 1]")
	assert.Contains(t, gen.prompt, "[Document 4]")

	turns, err := history.Load(context.Background(), ans.ChatID)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "what?", turns[0].Content)
	assert.Equal(t, "Grounded answer.", turns[1].Content)
	assert.Len(t, turns[1].Sources, 2)
}

func TestAnswerUsesRequestedSpace(t *testing.T) {
	ret := &fakeRetriever{hits: testHits(2)}
	gen := &scriptedGenerator{answer: "ok\nSOURCES: 1"}
	e, _ := newTestEngine(t, ret, gen)

	ans, err := e.Answer(context.Background(), SpaceLocal, "chat-1", "what?")
	require.NoError(t, err)
	assert.True(t, ret.fastCalled)
	assert.False(t, ret.durableCalled)
	assert.Equal(t, "ok", ans.Text)
}

func TestAnswerDefaultsToRemoteSpace(t *testing.T) {
	ret := &fakeRetriever{hits: testHits(2)}
	e, _ := newTestEngine(t, ret, &scriptedGenerator{answer: "ok\nSOURCES: 0"})

	_, err := e.Answer(context.Background(), "", "chat-1", "what?")
	require.NoError(t, err)
	assert.True(t, ret.durableCalled)
	assert.False(t, ret.fastCalled)
}

func TestAnswerRejectsUnknownSpace(t *testing.T) {
	e, _ := newTestEngine(t, &fakeRetriever{}, &scriptedGenerator{})

	_, err := e.Answer(context.Background(), "sideways", "chat-1", "what?")
	assert.Error(t, err)
}

func TestAnswerRejectsEmptyQuestion(t *testing.T) {
	e, _ := newTestEngine(t, &fakeRetriever{}, &scriptedGenerator{})

	_, err := e.Answer(context.Background(), SpaceRemote, "", "")
	assert.Error(t, err)
}

func TestAnswerStreamHoldsBackTrailer(t *testing.T) {
	ret := &fakeRetriever{hits: testHits(4)}
	// The trailer is split across chunk boundaries.
	gen := &scriptedGenerator{chunks: []string{"Streamed ", "answer.", "\n\nSOUR", "CES: 1, 3"}}
	e, _ := newTestEngine(t, ret, gen)

	events, err := e.AnswerStream(context.Background(), SpaceRemote, "", "what?")
	require.NoError(t, err)

	var streamed string
	var end Event
	sawStart := false
	for ev := range events {
		switch ev.Type {
		case "start":
			sawStart = true
		case "chunk":
			streamed += ev.Text
		case "end":
			end = ev
		case "error":
			t.Fatalf("unexpected error event: %s", ev.Error)
		}
	}

	assert.True(t, sawStart)
	assert.Equal(t, "Streamed answer.", streamed)
	assert.Equal(t, "Streamed answer.", end.Text)
	require.Len(t, end.Sources, 2)
	assert.Equal(t, 1, end.Sources[0].Page)
	assert.Equal(t, 3, end.Sources[1].Page)
}

func TestAnswerStreamEmitsHeldTextWithoutTrailer(t *testing.T) {
	ret := &fakeRetriever{hits: testHits(2)}
	// Ends with something that looks like a sentinel start but is not one.
	gen := &scriptedGenerator{chunks: []string{"See the SOURC", "E file for details."}}
	e, _ := newTestEngine(t, ret, gen)

	events, err := e.AnswerStream(context.Background(), SpaceRemote, "", "what?")
	require.NoError(t, err)

	var streamed string
	for ev := range events {
		if ev.Type == "chunk" {
			streamed += ev.Text
		}
	}
	assert.Equal(t, "See the SOURCE file for details.", streamed)
}

func TestAnswerStreamStopsWhenConsumerLeaves(t *testing.T) {
	ret := &fakeRetriever{hits: testHits(2)}
	gen := &scriptedGenerator{chunks: []string{"part one ", "part two ", "part three"}}
	e, _ := newTestEngine(t, ret, gen)

	before := runtime.NumGoroutine()
	ctx, cancel := context.WithCancel(context.Background())
	events, err := e.AnswerStream(ctx, SpaceRemote, "chat-gone", "what?")
	require.NoError(t, err)

	ev := <-events
	require.Equal(t, "start", ev.Type)

	// The consumer walks away without draining the channel. Poll from this
	// goroutine: assert.Eventually runs its condition in an extra goroutine,
	// which would keep the count above the baseline forever.
	cancel()
	deadline := time.Now().Add(time.Second)
	for runtime.NumGoroutine() > before {
		if time.Now().After(deadline) {
			t.Fatal("stream goroutine should exit once the consumer's context ends")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAnswerStreamPersistsExchange(t *testing.T) {
	ret := &fakeRetriever{hits: testHits(2)}
	gen := &scriptedGenerator{chunks: []string{"answer\nSOURCES: 1"}}
	e, history := newTestEngine(t, ret, gen)

	events, err := e.AnswerStream(context.Background(), SpaceRemote, "chat-s", "what?")
	require.NoError(t, err)
	for range events {
	}

	// Persistence happens just before the stream closes.
	deadline := time.Now().Add(time.Second)
	for {
		turns, err := history.Load(context.Background(), "chat-s")
		require.NoError(t, err)
		if len(turns) == 2 || time.Now().After(deadline) {
			require.Len(t, turns, 2)
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
}
