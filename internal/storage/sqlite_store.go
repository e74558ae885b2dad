package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id          TEXT PRIMARY KEY,
	text        TEXT NOT NULL,
	metadata    TEXT NOT NULL,
	origin      TEXT,
	embedding   BLOB NOT NULL,
	doc_name    TEXT NOT NULL DEFAULT '',
	document_id TEXT NOT NULL DEFAULT '',
	project_id  TEXT NOT NULL DEFAULT '',
	module_type TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_chunks_project ON chunks(project_id, module_type);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
CREATE INDEX IF NOT EXISTS idx_chunks_doc_name ON chunks(doc_name);
`

// SQLiteOptions configures a SQLiteStore.
type SQLiteOptions struct {
	Path         string
	MaxOpenConns int
	JournalMode  string
	Dimension    int
}

// SQLiteStore persists chunks in a SQLite file and ranks them in process.
// Suited to single-node deployments with tens of thousands of chunks.
type SQLiteStore struct {
	db        *sql.DB
	dimension int
}

// NewSQLiteStore opens (creating if needed) the database at opts.Path.
func NewSQLiteStore(ctx context.Context, opts SQLiteOptions) (*SQLiteStore, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("sqlite store requires a path")
	}

	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	maxConns := opts.MaxOpenConns
	if maxConns <= 0 {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)

	if opts.JournalMode != "" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode="+opts.JournalMode); err != nil {
			db.Close()
			return nil, fmt.Errorf("set journal mode: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}

	return &SQLiteStore{db: db, dimension: opts.Dimension}, nil
}

// Query loads matching vectors and ranks them by cosine similarity.
func (s *SQLiteStore) Query(ctx context.Context, embedding []float32, topK int, filter Filter) ([]Result, error) {
	if topK <= 0 {
		return []Result{}, nil
	}
	if s.dimension > 0 && len(embedding) != s.dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, s.dimension, len(embedding))
	}

	where, args := filterClause(filter, sqlitePlaceholder)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, metadata, origin, embedding FROM chunks`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var blob []byte
		c, err := scanChunkColumns(rows, &blob)
		if err != nil {
			return nil, err
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", c.ID, err)
		}
		if len(vec) != len(embedding) {
			continue
		}
		results = append(results, ResultFromChunk(c, cosineSimilarity(embedding, vec)))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}

	return rankByScore(results, topK), nil
}

// Scan returns up to limit chunks ordered by id.
func (s *SQLiteStore) Scan(ctx context.Context, limit int, filter Filter) ([]Result, error) {
	where, args := filterClause(filter, sqlitePlaceholder)
	query := `SELECT id, text, metadata, origin FROM chunks` + where + ` ORDER BY id`
	if limit > 0 {
		args = append(args, limit)
		query += " LIMIT ?"
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scan chunks: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		c, err := scanChunkColumns(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, ResultFromChunk(c, 0))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return results, nil
}

// Upsert inserts or replaces chunks in a single transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, chunks []Chunk) error {
	prepared, err := prepareChunks(chunks, s.dimension)
	if err != nil {
		return err
	}
	if len(prepared) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, text, metadata, origin, embedding, doc_name, document_id, project_id, module_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			metadata = excluded.metadata,
			origin = excluded.origin,
			embedding = excluded.embedding,
			doc_name = excluded.doc_name,
			document_id = excluded.document_id,
			project_id = excluded.project_id,
			module_type = excluded.module_type
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range prepared {
		metaJSON, originJSON, err := encodeChunkColumns(c)
		if err != nil {
			return err
		}
		m := c.Metadata
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.Text, string(metaJSON), string(originJSON), encodeVector(c.Embedding),
			m.DocName, m.DocumentID, m.ProjectID, string(m.ModuleType),
		); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// Delete removes chunks matching filter.
func (s *SQLiteStore) Delete(ctx context.Context, filter Filter) (int, error) {
	if filter.IsEmpty() {
		return 0, ErrEmptyFilter
	}
	where, args := filterClause(filter, sqlitePlaceholder)
	res, err := s.db.ExecContext(ctx, `DELETE FROM chunks`+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	return int(n), nil
}

// Count returns the number of stored chunks.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func sqlitePlaceholder(int) string { return "?" }

var _ Store = (*SQLiteStore)(nil)
