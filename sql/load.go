package sql

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lib/pq"
)

//go:embed init.sql
var initSQL string

//go:embed chunks.sql
var chunksSQL string

//go:embed sources.sql
var sourcesSQL string

// ChunksFunctions are created by chunks.sql.
var ChunksFunctions = []string{
	"init_chunks",
	"insert_chunk",
	"select_chunks_by_similarity",
	"select_chunk_stats",
	"delete_chunks_by_source",
}

// SourcesFunctions are created by sources.sql.
var SourcesFunctions = []string{
	"init_sources",
	"upsert_source",
	"select_all_sources",
	"delete_source",
}

type script struct {
	name      string
	body      string
	functions []string
}

var (
	chunksScript  = script{name: "chunks", body: chunksSQL, functions: ChunksFunctions}
	sourcesScript = script{name: "sources", body: sourcesSQL, functions: SourcesFunctions}
)

// Init creates the vector extension.
func Init(db *sql.DB) error {
	_, err := db.Exec(initSQL)
	if err != nil {
		return fmt.Errorf("error executing init SQL: %w", err)
	}
	return nil
}

// LoadChunksSql creates the functions of the chunks table.
// Without force nothing is executed when all of them already exist.
func LoadChunksSql(db *sql.DB, force bool) error {
	return load(db, chunksScript, force)
}

// LoadSourcesSql creates the functions of the ingested sources registry.
func LoadSourcesSql(db *sql.DB, force bool) error {
	return load(db, sourcesScript, force)
}

// LoadAllSql runs every script.
func LoadAllSql(db *sql.DB, force bool) error {
	for _, s := range []script{chunksScript, sourcesScript} {
		if err := load(db, s, force); err != nil {
			return err
		}
	}
	return nil
}

func load(db *sql.DB, s script, force bool) error {
	if !force {
		missing, err := missingFunctions(db, s.functions)
		if err != nil {
			return fmt.Errorf("error checking %s functions: %w", s.name, err)
		}
		if len(missing) == 0 {
			return nil
		}
	}

	_, err := db.Exec(s.body)
	if err != nil {
		return fmt.Errorf("error executing %s SQL: %w", s.name, err)
	}

	missing, err := missingFunctions(db, s.functions)
	if err != nil {
		return fmt.Errorf("error checking %s functions: %w", s.name, err)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s SQL did not create %s", s.name, strings.Join(missing, ", "))
	}

	slog.Debug("Loaded SQL functions", slog.String("script", s.name))
	return nil
}

// missingFunctions returns the names of functions not in pg_proc, in the
// order given.
func missingFunctions(db *sql.DB, functions []string) ([]string, error) {
	rows, err := db.Query(
		`SELECT f.name
		FROM unnest($1::text[]) WITH ORDINALITY AS f(name, pos)
		WHERE NOT EXISTS (SELECT 1 FROM pg_proc WHERE proname = f.name)
		ORDER BY f.pos`,
		pq.Array(functions),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var missing []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		missing = append(missing, name)
	}
	return missing, rows.Err()
}
