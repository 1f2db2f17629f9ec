// Package postgres implements the full-text index on Postgres text search.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mynameiseileen/nestle-chatbot/internal/content"
	"github.com/mynameiseileen/nestle-chatbot/internal/index"
)

// DefaultMaxBatch bounds one unnest insert.
const DefaultMaxBatch = 1000

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the connection pool and table.
type Config struct {
	DSN             string
	Table           string
	MaxBatch        int
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Index stores documents in a table with a generated tsvector column.
type Index struct {
	pool     pool
	table    string
	maxBatch int
}

// New connects to Postgres. Connection failures are *content.FatalInitError.
func New(ctx context.Context, cfg Config) (*Index, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("index.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, &content.FatalInitError{Component: "postgres", Cause: err}
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, &content.FatalInitError{Component: "postgres", Cause: err}
	}
	return NewWithPool(p, cfg.Table, cfg.MaxBatch)
}

// NewWithPool builds an Index on an existing pool.
func NewWithPool(p pool, table string, maxBatch int) (*Index, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "site_content"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	return &Index{pool: p, table: table, maxBatch: maxBatch}, nil
}

// EnsureSchema checks for the table and creates it with its indexes when
// to_regclass reports it missing.
func (i *Index) EnsureSchema(ctx context.Context) error {
	var existing *string
	if err := i.pool.QueryRow(ctx, `SELECT to_regclass($1)::text`, i.table).Scan(&existing); err != nil {
		return &content.SchemaError{Target: i.table, Cause: err}
	}
	if existing != nil {
		return nil
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	text TEXT NOT NULL,
	url TEXT NOT NULL,
	category TEXT NOT NULL,
	tsv tsvector GENERATED ALWAYS AS (to_tsvector('english', text)) STORED
)`, i.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_tsv_idx ON %s USING GIN (tsv)`, i.table, i.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_category_idx ON %s (category)`, i.table, i.table),
	}
	for _, stmt := range stmts {
		if _, err := i.pool.Exec(ctx, stmt); err != nil {
			return &content.SchemaError{Target: i.table, Cause: err}
		}
	}
	return nil
}

// Upload inserts the batch in a single statement.
func (i *Index) Upload(ctx context.Context, docs []index.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if len(docs) > i.maxBatch {
		return fmt.Errorf("batch of %d documents exceeds limit %d", len(docs), i.maxBatch)
	}
	ids := make([]string, len(docs))
	texts := make([]string, len(docs))
	urls := make([]string, len(docs))
	categories := make([]string, len(docs))
	for n, d := range docs {
		ids[n], texts[n], urls[n], categories[n] = d.ID, d.Text, d.URL, d.Category
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, text, url, category)
SELECT * FROM unnest($1::text[], $2::text[], $3::text[], $4::text[])
ON CONFLICT (id) DO UPDATE
SET text = EXCLUDED.text, url = EXCLUDED.url, category = EXCLUDED.category`, i.table)
	if _, err := i.pool.Exec(ctx, query, ids, texts, urls, categories); err != nil {
		return fmt.Errorf("insert documents: %w", err)
	}
	return nil
}

// Search ranks matches with ts_rank_cd and highlights them with ts_headline.
func (i *Index) Search(ctx context.Context, query string, k int) ([]index.Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	stmt := fmt.Sprintf(`
SELECT id, text, url, category,
	ts_rank_cd(tsv, q)::float8 AS score,
	ts_headline('english', text, q, 'StartSel=<em>, StopSel=</em>, MaxFragments=2') AS highlight
FROM %s, websearch_to_tsquery('english', $1) AS q
WHERE tsv @@ q
ORDER BY score DESC, id
LIMIT $2`, i.table)
	rows, err := i.pool.Query(ctx, stmt, query, k)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()

	var hits []index.Hit
	for rows.Next() {
		var h index.Hit
		if err := rows.Scan(&h.ID, &h.Text, &h.URL, &h.Category, &h.Score, &h.Highlight); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hits: %w", err)
	}
	return hits, nil
}

// MaxBatchDocuments implements index.Index.
func (i *Index) MaxBatchDocuments() int {
	return i.maxBatch
}

// Close releases the pool.
func (i *Index) Close() error {
	if i == nil || i.pool == nil {
		return nil
	}
	i.pool.Close()
	return nil
}

var _ index.Index = (*Index)(nil)
