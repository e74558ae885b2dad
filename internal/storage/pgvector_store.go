package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PGVectorOptions configures a PGVectorStore.
type PGVectorOptions struct {
	DSN             string
	Table           string
	Dimension       int
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// PGVectorStore implements Store on Postgres with the pgvector extension.
// Similarity search runs in the database with an HNSW cosine index.
type PGVectorStore struct {
	db        *sql.DB
	table     string
	dimension int
}

// NewPGVectorStore connects, ensures the extension and table exist and
// returns the store.
func NewPGVectorStore(ctx context.Context, opts PGVectorOptions) (*PGVectorStore, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("pgvector store requires a dsn")
	}
	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("pgvector store requires a positive dimension")
	}
	table := opts.Table
	if table == "" {
		table = "cew_chunks"
	}
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	db, err := sql.Open("postgres", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	s := &PGVectorStore{db: db, table: table, dimension: opts.Dimension}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PGVectorStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id          TEXT PRIMARY KEY,
			text        TEXT NOT NULL,
			metadata    JSONB NOT NULL,
			origin      JSONB,
			embedding   vector(%d) NOT NULL,
			doc_name    TEXT NOT NULL DEFAULT '',
			document_id TEXT NOT NULL DEFAULT '',
			project_id  TEXT NOT NULL DEFAULT '',
			module_type TEXT NOT NULL DEFAULT '',
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.table, s.dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, s.table, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_scope_idx ON %s (project_id, module_type)`, s.table, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_document_idx ON %s (document_id)`, s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", s.table, err)
		}
	}
	return nil
}

// Query runs a cosine distance search in Postgres.
func (s *PGVectorStore) Query(ctx context.Context, embedding []float32, topK int, filter Filter) ([]Result, error) {
	if topK <= 0 {
		return []Result{}, nil
	}
	if len(embedding) != s.dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, s.dimension, len(embedding))
	}

	// $1 is the query vector, filter binds start at $2.
	where, args := filterClause(filter, func(n int) string { return "$" + strconv.Itoa(n+1) })
	args = append([]interface{}{pgvector.NewVector(embedding)}, args...)
	args = append(args, topK)

	query := fmt.Sprintf(`
		SELECT id, text, metadata, origin, 1 - (embedding <=> $1) AS score
		FROM %s%s
		ORDER BY embedding <=> $1
		LIMIT $%d`, s.table, where, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var score float64
		c, err := scanChunkColumns(rows, &score)
		if err != nil {
			return nil, err
		}
		results = append(results, ResultFromChunk(c, score))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", s.table, err)
	}
	return results, nil
}

// Scan returns up to limit chunks ordered by id.
func (s *PGVectorStore) Scan(ctx context.Context, limit int, filter Filter) ([]Result, error) {
	where, args := filterClause(filter, func(n int) string { return "$" + strconv.Itoa(n) })
	query := fmt.Sprintf(`SELECT id, text, metadata, origin FROM %s%s ORDER BY id`, s.table, where)
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.table, err)
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
		return nil, fmt.Errorf("iterate %s: %w", s.table, err)
	}
	return results, nil
}

// Upsert inserts or replaces chunks in one transaction.
func (s *PGVectorStore) Upsert(ctx context.Context, chunks []Chunk) error {
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

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, text, metadata, origin, embedding, doc_name, document_id, project_id, module_type, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (id) DO UPDATE SET
			text = EXCLUDED.text,
			metadata = EXCLUDED.metadata,
			origin = EXCLUDED.origin,
			embedding = EXCLUDED.embedding,
			doc_name = EXCLUDED.doc_name,
			document_id = EXCLUDED.document_id,
			project_id = EXCLUDED.project_id,
			module_type = EXCLUDED.module_type,
			updated_at = now()
	`, s.table))
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
			c.ID, c.Text, string(metaJSON), string(originJSON), pgvector.NewVector(c.Embedding),
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
func (s *PGVectorStore) Delete(ctx context.Context, filter Filter) (int, error) {
	if filter.IsEmpty() {
		return 0, ErrEmptyFilter
	}
	where, args := filterClause(filter, func(n int) string { return "$" + strconv.Itoa(n) })
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s%s`, s.table, where), args...)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", s.table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", s.table, err)
	}
	return int(n), nil
}

// Count returns the number of stored chunks.
func (s *PGVectorStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", s.table, err)
	}
	return n, nil
}

// Close closes the connection pool.
func (s *PGVectorStore) Close() error {
	return s.db.Close()
}

var _ Store = (*PGVectorStore)(nil)
