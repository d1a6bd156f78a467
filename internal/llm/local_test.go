package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devkraft/ragline/pkg/logger"
)

type fakeChatEngine struct {
	answer string
	err    error
	calls  int
	seen   []Message
}

func (f *fakeChatEngine) chat(_ context.Context, messages []Message) (string, error) {
	f.calls++
	f.seen = messages
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeChatEngine) chatStream(ctx context.Context, messages []Message, emit func(string) error) error {
	answer, err := f.chat(ctx, messages)
	if err != nil {
		return err
	}
	return emit(answer)
}

func TestLocalGeneratorAppendsPromptAsUserTurn(t *testing.T) {
	engine := &fakeChatEngine{answer: "hi"}
	g := newLocalGenerator(engine, &fakeChatEngine{}, logger.New("test"))

	history := []Message{{Role: RoleUser, Content: "earlier"}, {Role: RoleAssistant, Content: "reply"}}
	answer, err := g.Generate(context.Background(), history, "now")
	require.NoError(t, err)
	assert.Equal(t, "hi", answer)

	require.Len(t, engine.seen, 3)
	assert.Equal(t, Message{Role: RoleUser, Content: "now"}, engine.seen[2])
}

func TestLocalGeneratorFallsBackPermanently(t *testing.T) {
	primary := &fakeChatEngine{err: errors.New("connection refused")}
	fallback := &fakeChatEngine{answer: "from fallback"}
	g := newLocalGenerator(primary, fallback, logger.New("test"))

	answer, err := g.Generate(context.Background(), nil, "q")
	require.NoError(t, err)
	assert.Equal(t, "from fallback", answer)
	// One attempt plus one retry before the switch.
	assert.Equal(t, 2, primary.calls)

	_, err = g.Generate(context.Background(), nil, "q2")
	require.NoError(t, err)
	assert.Equal(t, 2, primary.calls)
	assert.Equal(t, 2, fallback.calls)
}

func TestLocalGeneratorStreamFallsBack(t *testing.T) {
	primary := &fakeChatEngine{err: errors.New("model missing")}
	fallback := &fakeChatEngine{answer: "whole answer"}
	g := newLocalGenerator(primary, fallback, logger.New("test"))

	ch, err := g.GenerateStream(context.Background(), nil, "q")
	require.NoError(t, err)

	var got string
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		got += chunk.Text
	}
	assert.Equal(t, "whole answer", got)
}

// haltingChatEngine emits a fragment and then fails, like a model that dies
// mid-answer.
type haltingChatEngine struct {
	fragment string
}

func (h *haltingChatEngine) chat(context.Context, []Message) (string, error) {
	return "", errors.New("connection reset")
}

func (h *haltingChatEngine) chatStream(_ context.Context, _ []Message, emit func(string) error) error {
	if err := emit(h.fragment); err != nil {
		return err
	}
	return errors.New("connection reset")
}

func TestLocalGeneratorStreamDoesNotRegenerateAfterPartialAnswer(t *testing.T) {
	primary := &haltingChatEngine{fragment: "the answer begins "}
	fallback := &fakeChatEngine{answer: "the full answer again"}
	g := newLocalGenerator(primary, fallback, logger.New("test"))

	ch, err := g.GenerateStream(context.Background(), nil, "q")
	require.NoError(t, err)

	var got string
	var last Chunk
	for chunk := range ch {
		got += chunk.Text
		last = chunk
	}
	// The partial text arrived once; the failure is surfaced instead of a
	// second, regenerated copy of the answer.
	assert.Equal(t, "the answer begins ", got)
	assert.Error(t, last.Err)
	assert.Equal(t, 0, fallback.calls)

	// The engine switch still happened for subsequent calls.
	answer, err := g.Generate(context.Background(), nil, "q2")
	require.NoError(t, err)
	assert.Equal(t, "the full answer again", answer)
}

func TestLocalGeneratorStreamSurfacesTerminalError(t *testing.T) {
	primary := &fakeChatEngine{err: errors.New("down")}
	fallback := &fakeChatEngine{err: errors.New("also down")}
	g := newLocalGenerator(primary, fallback, logger.New("test"))

	ch, err := g.GenerateStream(context.Background(), nil, "q")
	require.NoError(t, err)

	var last Chunk
	for chunk := range ch {
		last = chunk
	}
	assert.Error(t, last.Err)
}

func TestTranscriptLabelsRoles(t *testing.T) {
	got := transcript([]Message{
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi"},
	})
	assert.Equal(t, "User: hello\nAssistant: hi\nAssistant:", got)
}
