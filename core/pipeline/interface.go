package pipeline

import (
	"context"
	"strings"

	"github.com/siherrmann/ragbot/model"
)

// ChunkFunc is a function that splits the text of one unit into chunks.
type ChunkFunc func(text string) ([]ChunkWithPosition, error)

// EmbedFunc is a function that generates the embedding of one text.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// BatchEmbedFunc generates embeddings for several texts in one call,
// in the order of the input.
type BatchEmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

// ChunkWithPosition is a chunk with its rune offsets inside the unit.
type ChunkWithPosition struct {
	Content    string
	StartPos   int
	EndPos     int
	ChunkIndex int
}

// Embedder bundles an embedding function with the dimension of its output.
type Embedder struct {
	Model     string
	Dimension int
	Embed     EmbedFunc
	// Optional
	Batch BatchEmbedFunc
	Close func() error
}

// EmbedAll embeds texts, in batches of batchSize when a batch function is set.
func (e *Embedder) EmbedAll(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	embeddings := make([][]float32, 0, len(texts))

	if e.Batch != nil && batchSize > 0 {
		for start := 0; start < len(texts); start += batchSize {
			end := min(start+batchSize, len(texts))
			batch, err := e.Batch(ctx, texts[start:end])
			if err != nil {
				return nil, err
			}
			embeddings = append(embeddings, batch...)
		}
		return embeddings, nil
	}

	for _, text := range texts {
		embedding, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, embedding)
	}
	return embeddings, nil
}

// SplitDocuments chunks every unit and copies the unit metadata onto its chunks.
// Windows containing only whitespace are dropped.
func SplitDocuments(chunker ChunkFunc, docs []model.Document) ([]model.Chunk, error) {
	chunks := []model.Chunk{}
	for _, doc := range docs {
		parts, err := chunker(doc.Content)
		if err != nil {
			return nil, err
		}

		for _, part := range parts {
			if strings.TrimSpace(part.Content) == "" {
				continue
			}

			metadata := doc.Metadata.Clone()
			metadata[model.MetadataChunkIndex] = part.ChunkIndex
			metadata[model.MetadataStartPos] = part.StartPos
			metadata[model.MetadataEndPos] = part.EndPos

			chunks = append(chunks, model.Chunk{
				Text:     part.Content,
				Metadata: metadata,
			})
		}
	}
	return chunks, nil
}
