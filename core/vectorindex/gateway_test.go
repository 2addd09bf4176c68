package vectorindex

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/siherrmann/ragbot/core/pipeline"
	"github.com/siherrmann/ragbot/database"
	"github.com/siherrmann/ragbot/helper"
	"github.com/siherrmann/ragbot/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Index = (*database.ChunksDBHandler)(nil)
var _ SourceDeleter = (*database.ChunksDBHandler)(nil)
var _ Index = (*MemoryIndex)(nil)

// letterEmbedder embeds a text as its letter histogram.
func letterEmbedder(calls *atomic.Int64) *pipeline.Embedder {
	embed := func(ctx context.Context, text string) ([]float32, error) {
		if calls != nil {
			calls.Add(1)
		}
		v := make([]float32, 26)
		for _, r := range strings.ToLower(text) {
			if r >= 'a' && r <= 'z' {
				v[r-'a']++
			}
		}
		return v, nil
	}
	return &pipeline.Embedder{Model: "letters", Dimension: 26, Embed: embed}
}

func chunk(text string, source string) model.Chunk {
	return model.Chunk{Text: text, Metadata: model.Metadata{model.MetadataSource: source}}
}

// countingIndex wraps a MemoryIndex and counts EnsureIndex calls.
type countingIndex struct {
	*MemoryIndex
	ensures   atomic.Int64
	insertErr error
}

func (c *countingIndex) EnsureIndex(ctx context.Context, dimension int) error {
	c.ensures.Add(1)
	return c.MemoryIndex.EnsureIndex(ctx, dimension)
}

func (c *countingIndex) Insert(ctx context.Context, records []*model.Record) error {
	if c.insertErr != nil {
		return c.insertErr
	}
	return c.MemoryIndex.Insert(ctx, records)
}

func TestNewGateway(t *testing.T) {
	t.Run("Valid call NewGateway", func(t *testing.T) {
		g, err := NewGateway(NewMemoryIndex(), letterEmbedder(nil), model.RetrievalConfig{}, nil)
		require.NoError(t, err)
		assert.Equal(t, 4, g.topK)
		assert.Equal(t, 26, g.Dimension())
	})

	t.Run("Invalid call NewGateway without index", func(t *testing.T) {
		_, err := NewGateway(nil, letterEmbedder(nil), model.DefaultRetrievalConfig(), nil)
		assert.ErrorIs(t, err, helper.ErrConfig)
	})

	t.Run("Invalid call NewGateway without embedder", func(t *testing.T) {
		_, err := NewGateway(NewMemoryIndex(), nil, model.DefaultRetrievalConfig(), nil)
		assert.ErrorIs(t, err, helper.ErrConfig)

		_, err = NewGateway(NewMemoryIndex(), &pipeline.Embedder{Embed: letterEmbedder(nil).Embed}, model.DefaultRetrievalConfig(), nil)
		assert.ErrorIs(t, err, helper.ErrConfig)
	})
}

func TestGatewayAddAndSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("Search on an empty index returns no chunks without embedding", func(t *testing.T) {
		var calls atomic.Int64
		g, err := NewGateway(NewMemoryIndex(), letterEmbedder(&calls), model.DefaultRetrievalConfig(), nil)
		require.NoError(t, err)

		chunks, err := g.Search(ctx, "anything", 0)
		require.NoError(t, err)
		assert.NotNil(t, chunks)
		assert.Empty(t, chunks)
		assert.Equal(t, int64(0), calls.Load())
	})

	t.Run("Valid call Add and Search", func(t *testing.T) {
		g, err := NewGateway(NewMemoryIndex(), letterEmbedder(nil), model.DefaultRetrievalConfig(), nil)
		require.NoError(t, err)

		n, err := g.Add(ctx, []model.Chunk{
			chunk("aaaa", "a.txt"),
			chunk("bbbb", "b.txt"),
			chunk("cccc", "c.txt"),
			chunk("aaab", "ab.txt"),
			chunk("zzzz", "z.txt"),
			chunk("yyyy", "y.txt"),
		})
		require.NoError(t, err)
		assert.Equal(t, 6, n)

		stats, err := g.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(6), stats.Count)
		assert.Equal(t, 26, stats.Dimension)

		chunks, err := g.Search(ctx, "a", 0)
		require.NoError(t, err)
		require.Len(t, chunks, 4)
		assert.Equal(t, "aaaa", chunks[0].Text)
		assert.Equal(t, "aaab", chunks[1].Text)
		assert.InDelta(t, 1.0, chunks[0].Similarity, 1e-9)
		for i := 1; i < len(chunks); i++ {
			assert.GreaterOrEqual(t, chunks[i-1].Similarity, chunks[i].Similarity)
		}

		chunks, err = g.Search(ctx, "z", 1)
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, "z.txt", chunks[0].Metadata.Source())
	})

	t.Run("Every added chunk is found by its own text", func(t *testing.T) {
		g, err := NewGateway(NewMemoryIndex(), letterEmbedder(nil), model.DefaultRetrievalConfig(), nil)
		require.NoError(t, err)

		texts := []string{"go", "rust", "python", "java", "kotlin"}
		chunks := []model.Chunk{}
		for _, text := range texts {
			chunks = append(chunks, chunk(text, text+".txt"))
		}
		_, err = g.Add(ctx, chunks)
		require.NoError(t, err)

		for _, text := range texts {
			found, err := g.Search(ctx, text, 1)
			require.NoError(t, err)
			require.Len(t, found, 1)
			assert.Equal(t, text, found[0].Text)
		}
	})

	t.Run("Index is ensured once across concurrent adds", func(t *testing.T) {
		index := &countingIndex{MemoryIndex: NewMemoryIndex()}
		g, err := NewGateway(index, letterEmbedder(nil), model.DefaultRetrievalConfig(), nil)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := g.Add(ctx, []model.Chunk{chunk("concurrent", "c.txt")})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		assert.Equal(t, int64(1), index.ensures.Load())
		stats, err := g.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(8), stats.Count)
	})

	t.Run("Add with no chunks is a no-op", func(t *testing.T) {
		index := &countingIndex{MemoryIndex: NewMemoryIndex()}
		g, err := NewGateway(index, letterEmbedder(nil), model.DefaultRetrievalConfig(), nil)
		require.NoError(t, err)

		n, err := g.Add(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.Equal(t, int64(0), index.ensures.Load())
	})

	t.Run("Invalid call Add with a chunk without source", func(t *testing.T) {
		g, err := NewGateway(NewMemoryIndex(), letterEmbedder(nil), model.DefaultRetrievalConfig(), nil)
		require.NoError(t, err)

		_, err = g.Add(ctx, []model.Chunk{chunk("text", "")})
		assert.ErrorIs(t, err, helper.ErrIndex)
	})

	t.Run("Embedding failure writes nothing", func(t *testing.T) {
		var calls atomic.Int64
		failing := &pipeline.Embedder{
			Dimension: 26,
			Embed: func(ctx context.Context, text string) ([]float32, error) {
				if calls.Add(1) == 2 {
					return nil, errors.New("provider down")
				}
				return letterEmbedder(nil).Embed(ctx, text)
			},
		}
		index := NewMemoryIndex()
		g, err := NewGateway(index, failing, model.DefaultRetrievalConfig(), nil)
		require.NoError(t, err)
		g.SetBatchSize(0)

		_, err = g.Add(ctx, []model.Chunk{chunk("one", "a"), chunk("two", "a"), chunk("three", "a")})
		require.Error(t, err)
		assert.ErrorIs(t, err, helper.ErrEmbed)

		stats, err := index.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), stats.Count)
	})

	t.Run("Invalid call Add with a dimension mismatch", func(t *testing.T) {
		wrong := &pipeline.Embedder{
			Dimension: 8,
			Embed: func(ctx context.Context, text string) ([]float32, error) {
				return make([]float32, 3), nil
			},
		}
		g, err := NewGateway(NewMemoryIndex(), wrong, model.DefaultRetrievalConfig(), nil)
		require.NoError(t, err)

		_, err = g.Add(ctx, []model.Chunk{chunk("text", "a")})
		assert.ErrorIs(t, err, helper.ErrIndex)
		assert.Contains(t, err.Error(), "dimension mismatch")
	})

	t.Run("Insert failure is an index error", func(t *testing.T) {
		index := &countingIndex{MemoryIndex: NewMemoryIndex(), insertErr: errors.New("disk full")}
		g, err := NewGateway(index, letterEmbedder(nil), model.DefaultRetrievalConfig(), nil)
		require.NoError(t, err)

		_, err = g.Add(ctx, []model.Chunk{chunk("text", "a")})
		assert.ErrorIs(t, err, helper.ErrIndex)
		assert.Contains(t, err.Error(), "disk full")
	})

	t.Run("Valid call DeleteSource", func(t *testing.T) {
		g, err := NewGateway(NewMemoryIndex(), letterEmbedder(nil), model.DefaultRetrievalConfig(), nil)
		require.NoError(t, err)

		_, err = g.Add(ctx, []model.Chunk{chunk("one", "a.txt"), chunk("two", "a.txt"), chunk("three", "b.txt")})
		require.NoError(t, err)

		n, err := g.DeleteSource(ctx, "a.txt")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		stats, err := g.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Count)
	})
}

func TestGatewayReplace(t *testing.T) {
	ctx := context.Background()

	sourceTexts := func(t *testing.T, g *Gateway, query string) []string {
		t.Helper()
		chunks, err := g.Search(ctx, query, 10)
		require.NoError(t, err)
		texts := []string{}
		for _, c := range chunks {
			texts = append(texts, c.Metadata.Source()+":"+c.Text)
		}
		return texts
	}

	t.Run("Valid call Replace", func(t *testing.T) {
		g, err := NewGateway(NewMemoryIndex(), letterEmbedder(nil), model.DefaultRetrievalConfig(), nil)
		require.NoError(t, err)
		_, err = g.Add(ctx, []model.Chunk{chunk("old one", "a.txt"), chunk("old two", "a.txt"), chunk("other", "b.txt")})
		require.NoError(t, err)

		replaced, added, err := g.Replace(ctx, "a.txt", []model.Chunk{chunk("new", "a.txt")})
		require.NoError(t, err)
		assert.Equal(t, int64(2), replaced)
		assert.Equal(t, 1, added)
		assert.ElementsMatch(t, []string{"a.txt:new", "b.txt:other"}, sourceTexts(t, g, "new"))
	})

	t.Run("Embedding failure keeps the previous chunks", func(t *testing.T) {
		var failing atomic.Bool
		embedder := letterEmbedder(nil)
		embed := embedder.Embed
		embedder.Embed = func(ctx context.Context, text string) ([]float32, error) {
			if failing.Load() {
				return nil, errors.New("provider down")
			}
			return embed(ctx, text)
		}
		g, err := NewGateway(NewMemoryIndex(), embedder, model.DefaultRetrievalConfig(), nil)
		require.NoError(t, err)
		_, err = g.Add(ctx, []model.Chunk{chunk("old", "a.txt")})
		require.NoError(t, err)

		failing.Store(true)
		_, _, err = g.Replace(ctx, "a.txt", []model.Chunk{chunk("new", "a.txt")})
		assert.ErrorIs(t, err, helper.ErrEmbed)

		failing.Store(false)
		assert.Equal(t, []string{"a.txt:old"}, sourceTexts(t, g, "old"))
	})

	t.Run("Replace with no chunks removes the source", func(t *testing.T) {
		g, err := NewGateway(NewMemoryIndex(), letterEmbedder(nil), model.DefaultRetrievalConfig(), nil)
		require.NoError(t, err)
		_, err = g.Add(ctx, []model.Chunk{chunk("old", "a.txt"), chunk("other", "b.txt")})
		require.NoError(t, err)

		replaced, added, err := g.Replace(ctx, "a.txt", nil)
		require.NoError(t, err)
		assert.Equal(t, int64(1), replaced)
		assert.Equal(t, 0, added)
		assert.Equal(t, []string{"b.txt:other"}, sourceTexts(t, g, "other"))
	})

	t.Run("Chunks of another source are rejected", func(t *testing.T) {
		g, err := NewGateway(NewMemoryIndex(), letterEmbedder(nil), model.DefaultRetrievalConfig(), nil)
		require.NoError(t, err)
		_, err = g.Add(ctx, []model.Chunk{chunk("old", "a.txt")})
		require.NoError(t, err)

		_, _, err = g.Replace(ctx, "a.txt", []model.Chunk{chunk("new", "b.txt")})
		assert.ErrorIs(t, err, helper.ErrIndex)
		assert.Equal(t, []string{"a.txt:old"}, sourceTexts(t, g, "old"))
	})

	t.Run("Index without delete support is a config error", func(t *testing.T) {
		appendOnly := struct{ Index }{NewMemoryIndex()}
		g, err := NewGateway(appendOnly, letterEmbedder(nil), model.DefaultRetrievalConfig(), nil)
		require.NoError(t, err)

		_, err = g.DeleteSource(ctx, "a.txt")
		assert.ErrorIs(t, err, helper.ErrConfig)

		_, _, err = g.Replace(ctx, "a.txt", []model.Chunk{chunk("new", "a.txt")})
		assert.ErrorIs(t, err, helper.ErrConfig)
	})
}
