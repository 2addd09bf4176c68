package database

import (
	"context"
	"fmt"
	"time"

	"github.com/siherrmann/ragbot/helper"
)

// IndexParams tunes the approximate nearest neighbor index.
//   - hnsw: M (default 16), EfConstruction (default 64)
//   - ivfflat: Lists (default 100)
type IndexParams struct {
	M              int `yaml:"m"`
	EfConstruction int `yaml:"ef_construction"`
	Lists          int `yaml:"lists"`
}

// ChangeIndexType rebuilds the cosine index on the chunks table as "hnsw" or "ivfflat".
// The table must exist, see EnsureIndex.
func (h *ChunksDBHandler) ChangeIndexType(ctx context.Context, indexType string, params IndexParams) error {
	var createIndexSQL string

	switch indexType {
	case "hnsw":
		m := 16
		efConstruction := 64
		if params.M > 0 {
			m = params.M
		}
		if params.EfConstruction > 0 {
			efConstruction = params.EfConstruction
		}

		createIndexSQL = fmt.Sprintf(
			`CREATE INDEX idx_chunks_embedding ON chunks USING hnsw (embedding vector_cosine_ops) WITH (m = %d, ef_construction = %d);`,
			m, efConstruction,
		)

	case "ivfflat":
		lists := 100
		if params.Lists > 0 {
			lists = params.Lists
		}

		createIndexSQL = fmt.Sprintf(
			`CREATE INDEX idx_chunks_embedding ON chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d);`,
			lists,
		)

	default:
		return helper.NewKindError(helper.ErrIndex, "change index type", fmt.Errorf("unsupported index type: %s (use 'hnsw' or 'ivfflat')", indexType))
	}

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	tx, err := h.db.Instance.BeginTx(ctx, nil)
	if err != nil {
		return helper.NewKindError(helper.ErrIndex, "begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `DROP INDEX IF EXISTS idx_chunks_embedding;`)
	if err != nil {
		return helper.NewKindError(helper.ErrIndex, "drop index", err)
	}

	_, err = tx.ExecContext(ctx, createIndexSQL)
	if err != nil {
		return helper.NewKindError(helper.ErrIndex, "create index", err)
	}

	err = tx.Commit()
	if err != nil {
		return helper.NewKindError(helper.ErrIndex, "commit", err)
	}

	h.db.Logger.Info("Changed vector index type", "type", indexType)

	return nil
}
