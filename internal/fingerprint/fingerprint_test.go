package fingerprint

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSum_Deterministic(t *testing.T) {
	content := []byte("the quick brown fox jumps over the lazy dog")

	first, err := Sum(bytes.NewReader(content))
	require.NoError(t, err)
	second, err := Sum(bytes.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first, SumBytes(content))
}

func TestSum_UppercaseHex(t *testing.T) {
	sum, err := Sum(strings.NewReader("hello"))
	require.NoError(t, err)

	assert.Equal(t, strings.ToUpper(sum), sum)
	assert.Len(t, sum, 32)
}

func TestSum_DiffersOnDifferentBytes(t *testing.T) {
	a := SumBytes([]byte("same logical content"))
	b := SumBytes([]byte("same logical content\n"))

	assert.NotEqual(t, a, b)
}

func TestSum_LargeInputStreams(t *testing.T) {
	// Larger than one read block, so the streaming path is exercised.
	large := bytes.Repeat([]byte("abcdefgh"), 10*blockSize)

	fromReader, err := Sum(bytes.NewReader(large))
	require.NoError(t, err)
	assert.Equal(t, SumBytes(large), fromReader)
}

func TestSumFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("file content"), 0o644))

	sum, err := SumFile(path)
	require.NoError(t, err)
	assert.Equal(t, SumBytes([]byte("file content")), sum)

	_, err = SumFile(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}
