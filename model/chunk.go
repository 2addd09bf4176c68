package model

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/ragbot/helper"
)

// Chunk is a bounded slice of source text, the unit of retrieval.
type Chunk struct {
	ID        uuid.UUID `json:"id"`
	Text      string    `json:"text"`
	Metadata  Metadata  `json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
	// Results
	Similarity float64 `json:"similarity,omitempty"`
}

// Validate checks that the chunk can be indexed and cited.
func (c *Chunk) Validate() error {
	if strings.TrimSpace(c.Text) == "" {
		return helper.NewError("chunk validation", errors.New("chunk text is empty"))
	}
	if c.Metadata.Source() == "" {
		return helper.NewError("chunk validation", errors.New("chunk source is empty"))
	}
	return nil
}

// Record is a chunk together with its embedding as stored in the vector index.
type Record struct {
	ID        uuid.UUID `json:"id"`
	Embedding []float32 `json:"embedding"`
	Chunk     Chunk     `json:"chunk"`
}

// NewRecord assigns a fresh id to the chunk and pairs it with its embedding.
func NewRecord(chunk Chunk, embedding []float32) *Record {
	if chunk.ID == uuid.Nil {
		chunk.ID = uuid.New()
	}
	return &Record{
		ID:        chunk.ID,
		Embedding: embedding,
		Chunk:     chunk,
	}
}

// IndexStats describes the content of a vector index.
type IndexStats struct {
	Name      string `json:"index_name"`
	Count     int64  `json:"count"`
	Dimension int    `json:"dimension"`
}

// Sources returns the distinct sources of chunks in order of first appearance.
func Sources(chunks []*Chunk) []string {
	sources := []string{}
	seen := map[string]bool{}
	for _, c := range chunks {
		s := c.Metadata.Source()
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		sources = append(sources, s)
	}
	return sources
}
