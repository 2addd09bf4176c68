package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/siherrmann/ragbot/core/pipeline"
	"github.com/siherrmann/ragbot/helper"
	"github.com/siherrmann/ragbot/model"
)

// Index is a persistent similarity search index over chunk embeddings.
// Creating an index that already exists with the same dimension is a no-op.
type Index interface {
	EnsureIndex(ctx context.Context, dimension int) error
	Insert(ctx context.Context, records []*model.Record) error
	Query(ctx context.Context, embedding []float32, k int) ([]*model.Chunk, error)
	Stats(ctx context.Context) (model.IndexStats, error)
}

// SourceDeleter is implemented by indexes that can remove all chunks of a source.
type SourceDeleter interface {
	DeleteBySource(ctx context.Context, source string) (int64, error)
}

// DefaultBatchSize is the number of chunk texts embedded per request.
const DefaultBatchSize = 64

// Gateway owns the embedder and the index and exposes add and search.
type Gateway struct {
	index     Index
	embedder  *pipeline.Embedder
	topK      int
	batchSize int
	log       *slog.Logger

	mu      sync.Mutex
	ensured bool
}

// NewGateway creates a gateway. A missing index or embedder is a configuration error.
func NewGateway(index Index, embedder *pipeline.Embedder, retrieval model.RetrievalConfig, logger *slog.Logger) (*Gateway, error) {
	if index == nil {
		return nil, helper.NewKindError(helper.ErrConfig, "new gateway", errors.New("vector index is not configured"))
	}
	if embedder == nil || embedder.Embed == nil {
		return nil, helper.NewKindError(helper.ErrConfig, "new gateway", errors.New("embedder is not configured"))
	}
	if embedder.Dimension <= 0 {
		return nil, helper.NewKindError(helper.ErrConfig, "new gateway", fmt.Errorf("invalid embedding dimension %d", embedder.Dimension))
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Gateway{
		index:     index,
		embedder:  embedder,
		topK:      retrieval.Normalize().TopK,
		batchSize: DefaultBatchSize,
		log:       logger,
	}, nil
}

// SetBatchSize sets the number of texts per embedding request, 0 embeds one by one.
func (g *Gateway) SetBatchSize(n int) {
	g.batchSize = max(n, 0)
}

// Dimension returns the output size of the embedder.
func (g *Gateway) Dimension() int {
	return g.embedder.Dimension
}

// Add embeds the chunks and appends them to the index, creating it on first use.
// All chunks are embedded before anything is written, so an embedding failure
// writes nothing. An insert failure can leave a part of the batch written.
func (g *Gateway) Add(ctx context.Context, chunks []model.Chunk) (int, error) {
	records, err := g.embed(ctx, chunks)
	if err != nil || len(records) == 0 {
		return 0, err
	}
	return g.insert(ctx, records)
}

// Replace swaps the chunks of source for chunks. The old chunks are only
// removed once every new chunk is embedded, so a failing embedder or an
// invalid chunk leaves the index as it was.
func (g *Gateway) Replace(ctx context.Context, source string, chunks []model.Chunk) (replaced int64, added int, err error) {
	for i := range chunks {
		if chunks[i].Metadata.Source() != source {
			return 0, 0, helper.NewKindError(helper.ErrIndex, "replace source", fmt.Errorf("chunk %d belongs to %q, not %q", i, chunks[i].Metadata.Source(), source))
		}
	}

	records, err := g.embed(ctx, chunks)
	if err != nil {
		return 0, 0, err
	}

	replaced, err = g.DeleteSource(ctx, source)
	if err != nil {
		return 0, 0, err
	}
	if len(records) == 0 {
		return replaced, 0, nil
	}

	added, err = g.insert(ctx, records)
	return replaced, added, err
}

func (g *Gateway) embed(ctx context.Context, chunks []model.Chunk) ([]*model.Record, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		if err := chunks[i].Validate(); err != nil {
			return nil, helper.NewKindError(helper.ErrIndex, "add chunks", fmt.Errorf("chunk %d: %w", i, err))
		}
		texts[i] = chunks[i].Text
	}

	embeddings, err := g.embedder.EmbedAll(ctx, texts, g.batchSize)
	if err != nil {
		return nil, helper.NewKindError(helper.ErrEmbed, "embed chunks", err)
	}
	if len(embeddings) != len(chunks) {
		return nil, helper.NewKindError(helper.ErrEmbed, "embed chunks", fmt.Errorf("got %d embeddings for %d chunks", len(embeddings), len(chunks)))
	}

	records := make([]*model.Record, len(chunks))
	for i, embedding := range embeddings {
		if len(embedding) != g.embedder.Dimension {
			return nil, helper.NewKindError(helper.ErrIndex, "add chunks", fmt.Errorf("embedding dimension mismatch: expected %d, got %d", g.embedder.Dimension, len(embedding)))
		}
		records[i] = model.NewRecord(chunks[i], embedding)
	}
	return records, nil
}

func (g *Gateway) insert(ctx context.Context, records []*model.Record) (int, error) {
	if err := g.ensureIndex(ctx); err != nil {
		return 0, err
	}

	if err := g.index.Insert(ctx, records); err != nil {
		return 0, helper.NewKindError(helper.ErrIndex, "insert records", err)
	}

	g.log.Debug("Added chunks to index", slog.Int("chunks", len(records)))

	return len(records), nil
}

func (g *Gateway) ensureIndex(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.ensured {
		return nil
	}
	if err := g.index.EnsureIndex(ctx, g.embedder.Dimension); err != nil {
		return helper.NewKindError(helper.ErrIndex, "ensure index", err)
	}
	g.ensured = true
	return nil
}

// Search returns up to k chunks most similar to query, best first.
// k <= 0 uses the configured top-k. An empty index gives an empty result.
func (g *Gateway) Search(ctx context.Context, query string, k int) ([]*model.Chunk, error) {
	if k <= 0 {
		k = g.topK
	}

	stats, err := g.Stats(ctx)
	if err != nil {
		return nil, err
	}
	if stats.Count == 0 {
		return []*model.Chunk{}, nil
	}

	embedding, err := g.embedder.Embed(ctx, query)
	if err != nil {
		return nil, helper.NewKindError(helper.ErrEmbed, "embed query", err)
	}

	chunks, err := g.index.Query(ctx, embedding, k)
	if err != nil {
		return nil, helper.NewKindError(helper.ErrIndex, "query index", err)
	}

	return chunks, nil
}

// Stats reports the record count and dimension of the index.
func (g *Gateway) Stats(ctx context.Context) (model.IndexStats, error) {
	stats, err := g.index.Stats(ctx)
	if err != nil {
		return model.IndexStats{}, helper.NewKindError(helper.ErrIndex, "index stats", err)
	}
	return stats, nil
}

// DeleteSource removes all chunks of source if the index supports it.
func (g *Gateway) DeleteSource(ctx context.Context, source string) (int64, error) {
	deleter, ok := g.index.(SourceDeleter)
	if !ok {
		return 0, helper.NewKindError(helper.ErrConfig, "delete source", errors.New("index does not support deleting by source"))
	}

	n, err := deleter.DeleteBySource(ctx, source)
	if err != nil {
		return 0, helper.NewKindError(helper.ErrIndex, "delete source", err)
	}
	return n, nil
}
