package database

import (
	"context"
	"testing"

	"github.com/siherrmann/ragbot/helper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeIndexType(t *testing.T) {
	database := initDB(t)
	resetChunks(t, database)
	ctx := context.Background()

	chunksDbHandler, err := NewChunksDBHandler(database, false)
	require.NoError(t, err, "Expected NewChunksDBHandler to not return an error")
	require.NoError(t, chunksDbHandler.EnsureIndex(ctx, 384))

	t.Run("Change index to IVFFlat with default params", func(t *testing.T) {
		err := chunksDbHandler.ChangeIndexType(ctx, "ivfflat", IndexParams{})
		assert.NoError(t, err, "Expected ChangeIndexType to ivfflat to not return an error")
	})

	t.Run("Change index to IVFFlat with custom params", func(t *testing.T) {
		err := chunksDbHandler.ChangeIndexType(ctx, "ivfflat", IndexParams{Lists: 200})
		assert.NoError(t, err)
	})

	t.Run("Change index to HNSW with custom params", func(t *testing.T) {
		err := chunksDbHandler.ChangeIndexType(ctx, "hnsw", IndexParams{M: 32, EfConstruction: 128})
		assert.NoError(t, err, "Expected ChangeIndexType to hnsw with custom params to not return an error")

		var method string
		err = database.Instance.QueryRow(
			`SELECT am.amname FROM pg_class c JOIN pg_am am ON am.oid = c.relam WHERE c.relname = 'idx_chunks_embedding'`,
		).Scan(&method)
		require.NoError(t, err)
		assert.Equal(t, "hnsw", method)
	})

	t.Run("Change index with unsupported index type", func(t *testing.T) {
		err := chunksDbHandler.ChangeIndexType(ctx, "flat", IndexParams{})
		assert.Error(t, err, "Expected error when using unsupported index type")
		assert.Contains(t, err.Error(), "unsupported index type", "Expected error message to mention unsupported index type")
		assert.ErrorIs(t, err, helper.ErrIndex)
	})
}
