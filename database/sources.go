package database

import (
	"context"
	"fmt"
	"time"

	"github.com/siherrmann/ragbot/helper"
	"github.com/siherrmann/ragbot/model"
	"github.com/siherrmann/ragbot/sql"
)

// SourcesDBHandlerFunctions defines the interface for the ingested sources registry.
type SourcesDBHandlerFunctions interface {
	UpsertSource(ctx context.Context, source *model.SourceRecord) error
	SelectAllSources(ctx context.Context, limit int) ([]*model.SourceRecord, error)
	DeleteSource(ctx context.Context, name string) error
}

// SourcesDBHandler keeps track of which files and pages were ingested.
type SourcesDBHandler struct {
	db *helper.Database
}

// NewSourcesDBHandler creates a new sources database handler.
// If force is true, it will reload the SQL functions even if they already exist.
func NewSourcesDBHandler(db *helper.Database, force bool) (*SourcesDBHandler, error) {
	if db == nil {
		return nil, helper.NewKindError(helper.ErrIndex, "database connection validation", fmt.Errorf("database connection is nil"))
	}

	sourcesDbHandler := &SourcesDBHandler{
		db: db,
	}

	err := sql.LoadSourcesSql(sourcesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewKindError(helper.ErrIndex, "load sources sql", err)
	}

	err = sourcesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized SourcesDBHandler")

	return sourcesDbHandler, nil
}

// CreateTable creates the 'sources' table if it does not exist.
func (h *SourcesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_sources();`)
	if err != nil {
		return helper.NewKindError(helper.ErrIndex, "init sources", err)
	}

	h.db.Logger.Info("Checked/created table sources")

	return nil
}

// UpsertSource records an ingestion. Chunk counts of repeated ingestions add up.
func (h *SourcesDBHandler) UpsertSource(ctx context.Context, source *model.SourceRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM upsert_source($1, $2, $3, $4)`,
		source.Name,
		source.Type,
		source.Chunks,
		source.Metadata,
	)

	err := row.Scan(
		&source.Name,
		&source.Type,
		&source.Chunks,
		&source.Metadata,
		&source.CreatedAt,
		&source.UpdatedAt,
	)
	if err != nil {
		return helper.NewKindError(helper.ErrIndex, "scan", err)
	}

	return nil
}

// SelectAllSources returns the most recently updated sources first.
func (h *SourcesDBHandler) SelectAllSources(ctx context.Context, limit int) ([]*model.SourceRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := h.db.Instance.QueryContext(ctx, `SELECT * FROM select_all_sources($1)`, limit)
	if err != nil {
		return nil, helper.NewKindError(helper.ErrIndex, "query", err)
	}
	defer rows.Close()

	sources := []*model.SourceRecord{}
	for rows.Next() {
		source := &model.SourceRecord{}
		err := rows.Scan(
			&source.Name,
			&source.Type,
			&source.Chunks,
			&source.Metadata,
			&source.CreatedAt,
			&source.UpdatedAt,
		)
		if err != nil {
			return nil, helper.NewKindError(helper.ErrIndex, "scan", err)
		}
		sources = append(sources, source)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewKindError(helper.ErrIndex, "rows error", err)
	}

	return sources, nil
}

// DeleteSource removes a source from the registry.
func (h *SourcesDBHandler) DeleteSource(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT delete_source($1)`, name)
	if err != nil {
		return helper.NewKindError(helper.ErrIndex, "exec", err)
	}
	return nil
}
