package database

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/ragbot/helper"
	"github.com/siherrmann/ragbot/model"
	loadSql "github.com/siherrmann/ragbot/sql"
)

// IndexName is the name reported in the index statistics.
const IndexName = "chunks"

// ChunksDBHandlerFunctions defines the interface for Chunks database operations.
type ChunksDBHandlerFunctions interface {
	EnsureIndex(ctx context.Context, dimension int) error
	Insert(ctx context.Context, records []*model.Record) error
	Query(ctx context.Context, embedding []float32, k int) ([]*model.Chunk, error)
	Stats(ctx context.Context) (model.IndexStats, error)
	DeleteBySource(ctx context.Context, source string) (int64, error)
}

// ChunksDBHandler stores chunk records in a pgvector table.
type ChunksDBHandler struct {
	db      *helper.Database
	timeout time.Duration
}

// NewChunksDBHandler creates a new chunks database handler.
// It loads the chunk related SQL functions, the table itself is created by
// EnsureIndex once the embedding dimension is known.
// If force is true, it will reload the SQL functions even if they already exist.
func NewChunksDBHandler(db *helper.Database, force bool) (*ChunksDBHandler, error) {
	if db == nil {
		return nil, helper.NewKindError(helper.ErrIndex, "database connection validation", fmt.Errorf("database connection is nil"))
	}

	err := loadSql.LoadChunksSql(db.Instance, force)
	if err != nil {
		return nil, helper.NewKindError(helper.ErrIndex, "load chunks sql", err)
	}

	db.Logger.Info("Initialized ChunksDBHandler")

	return &ChunksDBHandler{
		db:      db,
		timeout: 10 * time.Second,
	}, nil
}

// SetTimeout sets the timeout applied to every statement.
func (h *ChunksDBHandler) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		h.timeout = timeout
	}
}

// EnsureIndex creates the chunks table with an HNSW cosine index for the given
// dimension. Calling it again, also concurrently, is a no-op. A table created
// with another dimension is an error.
func (h *ChunksDBHandler) EnsureIndex(ctx context.Context, dimension int) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_chunks($1);`, dimension)
	if err != nil {
		return helper.NewKindError(helper.ErrIndex, "init chunks", err)
	}

	h.db.Logger.Debug("Checked/created table chunks", "dimension", dimension)

	return nil
}

// Insert writes all records in one transaction.
func (h *ChunksDBHandler) Insert(ctx context.Context, records []*model.Record) error {
	if len(records) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout+time.Duration(len(records))*100*time.Millisecond)
	defer cancel()

	tx, err := h.db.Instance.BeginTx(ctx, nil)
	if err != nil {
		return helper.NewKindError(helper.ErrIndex, "begin transaction", err)
	}
	defer tx.Rollback()

	for i, record := range records {
		row := tx.QueryRowContext(
			ctx,
			`SELECT * FROM insert_chunk($1, $2, $3, $4, $5)`,
			record.ID,
			record.Chunk.Text,
			record.Chunk.Metadata.Source(),
			record.Chunk.Metadata,
			pgvector.NewVector(record.Embedding),
		)

		err := row.Scan(&record.Chunk.ID, &record.Chunk.CreatedAt)
		if err != nil {
			return helper.NewKindError(helper.ErrIndex, fmt.Sprintf("insert chunk %d", i), err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return helper.NewKindError(helper.ErrIndex, "commit", err)
	}

	return nil
}

// Query returns up to k chunks ordered by descending cosine similarity.
func (h *ChunksDBHandler) Query(ctx context.Context, embedding []float32, k int) ([]*model.Chunk, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_chunks_by_similarity($1, $2)`,
		pgvector.NewVector(embedding),
		k,
	)
	if err != nil {
		return nil, helper.NewKindError(helper.ErrIndex, "query", err)
	}
	defer rows.Close()

	results := []*model.Chunk{}
	for rows.Next() {
		chunk := &model.Chunk{}
		err := rows.Scan(
			&chunk.ID,
			&chunk.Text,
			&chunk.Metadata,
			&chunk.CreatedAt,
			&chunk.Similarity,
		)
		if err != nil {
			return nil, helper.NewKindError(helper.ErrIndex, "scan", err)
		}

		results = append(results, chunk)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewKindError(helper.ErrIndex, "rows error", err)
	}

	return results, nil
}

// Stats returns the record count and the embedding dimension, both zero
// before the table exists.
func (h *ChunksDBHandler) Stats(ctx context.Context) (model.IndexStats, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	stats := model.IndexStats{Name: IndexName}
	err := h.db.Instance.QueryRowContext(ctx, `SELECT * FROM select_chunk_stats()`).Scan(&stats.Count, &stats.Dimension)
	if err != nil {
		return stats, helper.NewKindError(helper.ErrIndex, "select stats", err)
	}

	return stats, nil
}

// DeleteBySource removes every chunk of one source and returns how many were removed.
func (h *ChunksDBHandler) DeleteBySource(ctx context.Context, source string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var deleted int64
	err := h.db.Instance.QueryRowContext(ctx, `SELECT delete_chunks_by_source($1)`, source).Scan(&deleted)
	if err != nil {
		return 0, helper.NewKindError(helper.ErrIndex, "delete chunks by source", err)
	}

	return deleted, nil
}
