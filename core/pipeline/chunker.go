package pipeline

import (
	"fmt"
	"strings"
)

// FixedSizeChunker creates a chunker with a sliding window of size runes that
// advances by size-overlap. A text of at most size runes gives one chunk.
func FixedSizeChunker(size int, overlap int) ChunkFunc {
	return func(text string) ([]ChunkWithPosition, error) {
		if size <= 0 {
			return nil, fmt.Errorf("chunk size must be positive")
		}
		if overlap < 0 || overlap >= size {
			return nil, fmt.Errorf("chunk overlap must be between 0 and the chunk size, got %d", overlap)
		}

		if strings.TrimSpace(text) == "" {
			return []ChunkWithPosition{}, nil
		}

		runes := []rune(text)
		n := len(runes)
		step := size - overlap

		chunks := []ChunkWithPosition{}
		for start := 0; ; start += step {
			end := min(start+size, n)
			chunks = append(chunks, ChunkWithPosition{
				Content:    string(runes[start:end]),
				StartPos:   start,
				EndPos:     end,
				ChunkIndex: len(chunks),
			})
			if end == n {
				break
			}
		}

		return chunks, nil
	}
}

// DefaultChunker splits into windows of 1000 characters overlapping by 200.
func DefaultChunker() ChunkFunc {
	return FixedSizeChunker(1000, 200)
}
