package vectorindex

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/ragbot/model"
	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteIndexName is reported in the stats of a SQLiteIndex.
const SQLiteIndexName = "sqlite"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS index_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS chunks (
	id         TEXT PRIMARY KEY,
	text       TEXT NOT NULL,
	source     TEXT NOT NULL,
	metadata   TEXT NOT NULL,
	embedding  BLOB NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source);
`

// SQLiteIndex keeps records in a single SQLite file and searches them with
// brute force cosine similarity. It suits a personal knowledge base of a
// few thousand chunks without a database server.
type SQLiteIndex struct {
	db   *sql.DB
	path string

	mu sync.RWMutex
}

// NewSQLiteIndex opens or creates the index file at path.
func NewSQLiteIndex(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, errors.New("sqlite index path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating index directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite index: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating sqlite schema: %w", err)
	}

	return &SQLiteIndex{db: db, path: path}, nil
}

// Close closes the database file.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

// Path returns the index file path.
func (s *SQLiteIndex) Path() string {
	return s.path
}

func (s *SQLiteIndex) dimension(ctx context.Context) (int, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM index_meta WHERE key = 'dimension'`).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(value)
}

func (s *SQLiteIndex) EnsureIndex(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.dimension(ctx)
	if err != nil {
		return fmt.Errorf("reading index dimension: %w", err)
	}
	if current == 0 {
		_, err = s.db.ExecContext(ctx, `INSERT INTO index_meta(key, value) VALUES('dimension', ?)`, strconv.Itoa(dimension))
		if err != nil {
			return fmt.Errorf("storing index dimension: %w", err)
		}
		return nil
	}
	if current != dimension {
		return fmt.Errorf("embedding dimension mismatch: index has %d, got %d", current, dimension)
	}
	return nil
}

func (s *SQLiteIndex) Insert(ctx context.Context, records []*model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dimension, err := s.dimension(ctx)
	if err != nil {
		return fmt.Errorf("reading index dimension: %w", err)
	}
	if dimension == 0 {
		return errors.New("index does not exist")
	}
	for _, r := range records {
		if len(r.Embedding) != dimension {
			return fmt.Errorf("embedding dimension mismatch: index has %d, got %d", dimension, len(r.Embedding))
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks(id, text, source, metadata, embedding, created_at) VALUES(?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UnixNano()
	for _, r := range records {
		metadata, err := r.Chunk.Metadata.Value()
		if err != nil {
			return fmt.Errorf("encoding metadata: %w", err)
		}
		_, err = stmt.ExecContext(ctx, r.ID.String(), r.Chunk.Text, r.Chunk.Metadata.Source(), metadata, encodeEmbedding(r.Embedding), now)
		if err != nil {
			return fmt.Errorf("inserting chunk: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteIndex) Query(ctx context.Context, embedding []float32, k int) ([]*model.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if k <= 0 {
		return []*model.Chunk{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, text, metadata, embedding, created_at FROM chunks ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chunks := []*model.Chunk{}
	for rows.Next() {
		var (
			id        string
			blob      []byte
			createdAt int64
			c         model.Chunk
		)
		if err := rows.Scan(&id, &c.Text, &c.Metadata, &blob, &createdAt); err != nil {
			return nil, err
		}
		stored, err := decodeEmbedding(blob)
		if err != nil {
			return nil, err
		}
		if len(stored) != len(embedding) {
			return nil, fmt.Errorf("query dimension mismatch: index has %d, got %d", len(stored), len(embedding))
		}
		c.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parsing chunk id: %w", err)
		}
		c.CreatedAt = time.Unix(0, createdAt)
		c.Similarity = cosine(stored, embedding)
		chunks = append(chunks, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Similarity > chunks[j].Similarity })

	return chunks[:min(k, len(chunks))], nil
}

func (s *SQLiteIndex) Stats(ctx context.Context) (model.IndexStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := model.IndexStats{Name: SQLiteIndexName}
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&stats.Count)
	if err != nil {
		return stats, err
	}
	stats.Dimension, err = s.dimension(ctx)
	return stats, err
}

func (s *SQLiteIndex) DeleteBySource(ctx context.Context, source string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE source = ?`, source)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// encodeEmbedding stores float32 values little endian without a length prefix.
func encodeEmbedding(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func decodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}
