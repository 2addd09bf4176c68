package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedSizeChunker(t *testing.T) {
	t.Run("Valid call FixedSizeChunker with 2400 characters", func(t *testing.T) {
		chunker := FixedSizeChunker(1000, 200)

		chunks, err := chunker(strings.Repeat("X", 2400))
		require.NoError(t, err)
		require.Len(t, chunks, 3)

		assert.Equal(t, 0, chunks[0].StartPos)
		assert.Equal(t, 1000, chunks[0].EndPos)
		assert.Equal(t, 800, chunks[1].StartPos)
		assert.Equal(t, 1800, chunks[1].EndPos)
		assert.Equal(t, 1600, chunks[2].StartPos)
		assert.Equal(t, 2400, chunks[2].EndPos)
		for i, c := range chunks {
			assert.Equal(t, i, c.ChunkIndex)
			assert.LessOrEqual(t, len([]rune(c.Content)), 1000)
		}
	})

	t.Run("Chunk count follows the window formula", func(t *testing.T) {
		size, overlap := 1000, 200
		chunker := FixedSizeChunker(size, overlap)

		for _, n := range []int{1, 999, 1000, 1001, 1800, 1801, 5000, 12345} {
			chunks, err := chunker(strings.Repeat("a", n))
			require.NoError(t, err)

			expected := 1
			if n > size {
				expected = (n - overlap + (size - overlap) - 1) / (size - overlap)
			}
			assert.Equal(t, expected, len(chunks), "unexpected chunk count for length %d", n)
		}
	})

	t.Run("Chunks reconstruct the text without overlaps", func(t *testing.T) {
		chunker := FixedSizeChunker(10, 3)
		text := "The quick brown fox jumps over the lazy dog and keeps running"

		chunks, err := chunker(text)
		require.NoError(t, err)

		var rebuilt strings.Builder
		rebuilt.WriteString(chunks[0].Content)
		for _, c := range chunks[1:] {
			rebuilt.WriteString(string([]rune(c.Content)[3:]))
		}
		assert.Equal(t, text, rebuilt.String())
	})

	t.Run("Windows count runes not bytes", func(t *testing.T) {
		chunker := FixedSizeChunker(4, 1)

		chunks, err := chunker("äöüßäöü")
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, "äöüß", chunks[0].Content)
		assert.Equal(t, "ßäöü", chunks[1].Content)
	})

	t.Run("Short text gives one chunk", func(t *testing.T) {
		chunks, err := DefaultChunker()("Yash is a software engineer.")
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, "Yash is a software engineer.", chunks[0].Content)
	})

	t.Run("Whitespace only text gives no chunks", func(t *testing.T) {
		chunks, err := DefaultChunker()(" \n\t ")
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})

	t.Run("Invalid call FixedSizeChunker with non positive size", func(t *testing.T) {
		_, err := FixedSizeChunker(0, 0)("text")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "must be positive")
	})

	t.Run("Invalid call FixedSizeChunker with overlap not smaller than size", func(t *testing.T) {
		_, err := FixedSizeChunker(100, 100)("text")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "chunk overlap")

		_, err = FixedSizeChunker(100, -1)("text")
		assert.Error(t, err)
	})
}
