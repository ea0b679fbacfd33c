package linematch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildFromString(t *testing.T, corpus string) *Index {
	t.Helper()
	idx, err := NewBuilder().Build(context.Background(), []byte(corpus))
	require.NoError(t, err)
	return idx
}

func TestIndexExactMatch(t *testing.T) {
	idx := buildFromString(t, "7;0;6;28;0;23;5;0;\n1;0;6;16;0;19;3;0;\n")

	assert.True(t, idx.Lookup("7;0;6;28;0;23;5;0;"))
	assert.True(t, idx.Lookup("1;0;6;16;0;19;3;0;"))

	// partial and superstring queries must miss
	assert.False(t, idx.Lookup("7;0;6;28;0;23;5;0"))
	assert.False(t, idx.Lookup("7;0;6;28;0;23;5;0;;"))
	assert.False(t, idx.Lookup("0;6;28;0;23;5;0;"))
	assert.False(t, idx.Lookup(""))
}

func TestIndexTrimsAndDeduplicates(t *testing.T) {
	idx := buildFromString(t, "  alpha  \nalpha\n\n   \nbeta\r\n")

	assert.Equal(t, 2, idx.Len())
	assert.True(t, idx.Lookup("alpha"))
	assert.True(t, idx.Lookup("beta"))
	assert.False(t, idx.Lookup("  alpha  "))
}

func TestIndexRejectsInvalidText(t *testing.T) {
	_, err := NewBuilder().Build(context.Background(), []byte("good\n\xff\xfe\nmore\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorpusDecode)
	assert.Contains(t, err.Error(), "line 2")

	_, err = NewBuilder().Build(context.Background(), []byte("has\x00nul\n"))
	assert.ErrorIs(t, err, ErrCorpusDecode)
}

func TestBuildFromFileMissing(t *testing.T) {
	_, err := NewBuilder().Build(context.Background(), filepath.Join(t.TempDir(), "absent.txt"))
	assert.ErrorIs(t, err, ErrCorpusRead)
}

func TestBuildFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.txt")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0o644))

	idx, err := NewBuilder().Build(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())
	assert.True(t, idx.Lookup("two"))
	assert.False(t, idx.BuiltAt().IsZero())
}

func TestBuildGenerationsIncrease(t *testing.T) {
	b := NewBuilder()
	first, err := b.Build(context.Background(), []byte("a\n"))
	require.NoError(t, err)
	second, err := b.Build(context.Background(), []byte("a\n"))
	require.NoError(t, err)
	assert.Greater(t, second.Generation, first.Generation)
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	corpus := strings.Repeat("x\n", 10000)
	_, err := NewBuilder().Build(ctx, []byte(corpus))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildUnsupportedSource(t *testing.T) {
	_, err := NewBuilder().Build(context.Background(), 42)
	assert.ErrorContains(t, err, "unsupported corpus source")
}

// A hash-table hit alone must not produce a match: the stored line is
// compared byte for byte, so a colliding hash cannot report a different
// query as present.
func TestLookupRejectsHashCollision(t *testing.T) {
	stored := "genuine line"
	idx := &Index{
		lines:  map[string]struct{}{stored: {}},
		byHash: map[uint64]string{hashLine(stored): stored},
		bloom:  NewBloomFilter(DefaultBloomBits),
	}
	idx.bloom.Add(hashLine(stored))

	impostor := "impostor line"
	idx.byHash[hashLine(impostor)] = stored
	idx.bloom.Add(hashLine(impostor))

	assert.True(t, idx.Lookup(stored))
	assert.False(t, idx.Lookup(impostor))
}

func TestRowLine(t *testing.T) {
	line, ok := rowLine(map[string]any{"payload": "abc"}, "payload")
	assert.True(t, ok)
	assert.Equal(t, "abc", line)

	line, ok = rowLine(map[string]any{"only": []byte("raw")}, "")
	assert.True(t, ok)
	assert.Equal(t, "raw", line)

	_, ok = rowLine(map[string]any{"a": 1, "b": 2}, "")
	assert.False(t, ok)

	_, ok = rowLine(map[string]any{"a": 1}, "missing")
	assert.False(t, ok)
}
