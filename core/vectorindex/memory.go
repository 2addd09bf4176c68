package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/siherrmann/ragbot/model"
	"github.com/viant/vec/search"
)

// MemoryIndexName is reported in the stats of a MemoryIndex.
const MemoryIndexName = "memory"

// MemoryIndex is an in process index using brute force cosine similarity.
// Its content is lost when the process exits.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	records   []*model.Record
}

// NewMemoryIndex creates an empty in memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

func (m *MemoryIndex) EnsureIndex(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dimension == 0 {
		m.dimension = dimension
		return nil
	}
	if m.dimension != dimension {
		return fmt.Errorf("embedding dimension mismatch: index has %d, got %d", m.dimension, dimension)
	}
	return nil
}

func (m *MemoryIndex) Insert(ctx context.Context, records []*model.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dimension == 0 {
		return errors.New("index does not exist")
	}
	for _, r := range records {
		if len(r.Embedding) != m.dimension {
			return fmt.Errorf("embedding dimension mismatch: index has %d, got %d", m.dimension, len(r.Embedding))
		}
	}

	now := time.Now()
	for _, r := range records {
		stored := *r
		stored.Chunk.Metadata = r.Chunk.Metadata.Clone()
		stored.Chunk.CreatedAt = now
		m.records = append(m.records, &stored)
	}
	return nil
}

func (m *MemoryIndex) Query(ctx context.Context, embedding []float32, k int) ([]*model.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.records) == 0 || k <= 0 {
		return []*model.Chunk{}, nil
	}
	if len(embedding) != m.dimension {
		return nil, fmt.Errorf("query dimension mismatch: index has %d, got %d", m.dimension, len(embedding))
	}

	type scored struct {
		record     *model.Record
		similarity float64
	}
	scores := make([]scored, len(m.records))
	for i, r := range m.records {
		scores[i] = scored{record: r, similarity: cosine(r.Embedding, embedding)}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].similarity > scores[j].similarity })

	k = min(k, len(scores))
	chunks := make([]*model.Chunk, 0, k)
	for _, s := range scores[:k] {
		c := s.record.Chunk
		c.ID = s.record.ID
		c.Metadata = c.Metadata.Clone()
		c.Similarity = s.similarity
		chunks = append(chunks, &c)
	}
	return chunks, nil
}

func (m *MemoryIndex) Stats(ctx context.Context) (model.IndexStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return model.IndexStats{
		Name:      MemoryIndexName,
		Count:     int64(len(m.records)),
		Dimension: m.dimension,
	}, nil
}

func (m *MemoryIndex) DeleteBySource(ctx context.Context, source string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.records[:0]
	var deleted int64
	for _, r := range m.records {
		if r.Chunk.Metadata.Source() == source {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	// Drop references held past the new length
	for i := len(kept); i < len(m.records); i++ {
		m.records[i] = nil
	}
	m.records = kept
	return deleted, nil
}

// cosine returns the cosine similarity of a and b, 0 when either has no
// magnitude.
func cosine(a []float32, b []float32) float64 {
	va := search.Float32s(a)
	ma, mb := va.Magnitude(), search.Float32s(b).Magnitude()
	if ma == 0 || mb == 0 {
		return 0
	}
	return 1 - float64(va.CosineDistanceWithMagnitude(b, ma, mb))
}
