package chathistory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devkraft/ragline/pkg/logger"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestFileStoreAppendAndLoad(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "chat-1",
		Turn{Role: "user", Content: "hello", Timestamp: time.Now()},
		Turn{Role: "assistant", Content: "hi", Timestamp: time.Now()},
	))
	require.NoError(t, s.Append(ctx, "chat-1",
		Turn{Role: "user", Content: "more", Timestamp: time.Now()},
	))

	turns, err := s.Load(ctx, "chat-1")
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "hello", turns[0].Content)
	assert.Equal(t, "more", turns[2].Content)
}

func TestFileStoreLoadMissingChat(t *testing.T) {
	s := newTestFileStore(t)

	turns, err := s.Load(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestFileStoreRecentOrdersByActivity(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "old", Turn{Role: "user", Content: "first"}))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, s.Append(ctx, "new", Turn{Role: "user", Content: "second"}))

	summaries, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "new", summaries[0].ChatID)
	assert.Equal(t, "old", summaries[1].ChatID)
}

func TestFileStoreRecentRespectsLimit(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Append(ctx, id, Turn{Role: "user", Content: id}))
	}

	summaries, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, summaries, 2)
}

func TestPreviewTruncatesLongMessages(t *testing.T) {
	long := strings.Repeat("x", 80)
	got := preview([]Turn{{Role: "user", Content: long}})
	assert.Equal(t, strings.Repeat("x", 50)+"...", got)

	short := preview([]Turn{{Role: "user", Content: "hi"}})
	assert.Equal(t, "hi", short)

	// The preview comes from the first user turn, not assistant turns.
	mixed := preview([]Turn{
		{Role: "assistant", Content: "ignored"},
		{Role: "user", Content: "question"},
	})
	assert.Equal(t, "question", mixed)
}

type failingStore struct{ err error }

func (f *failingStore) Append(context.Context, string, ...Turn) error { return f.err }
func (f *failingStore) Load(context.Context, string) ([]Turn, error)  { return nil, f.err }
func (f *failingStore) Recent(context.Context, int) ([]Summary, error) {
	return nil, f.err
}

func TestFallbackStoreUsesSecondaryOnFailure(t *testing.T) {
	secondary := newTestFileStore(t)
	s := NewFallbackStore(&failingStore{err: errors.New("down")}, secondary, logger.New("test"))
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "chat-1", Turn{Role: "user", Content: "hello"}))

	turns, err := s.Load(ctx, "chat-1")
	require.NoError(t, err)
	require.Len(t, turns, 1)

	summaries, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}

func TestFallbackStoreReadsChatsWrittenDuringOutage(t *testing.T) {
	secondary := newTestFileStore(t)
	ctx := context.Background()
	require.NoError(t, secondary.Append(ctx, "chat-1", Turn{Role: "user", Content: "offline"}))

	// Primary is healthy but has never seen this chat.
	primary := newTestFileStore(t)
	s := NewFallbackStore(primary, secondary, logger.New("test"))

	turns, err := s.Load(ctx, "chat-1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "offline", turns[0].Content)
}
