// Package sqlite implements the full-text index on an SQLite FTS5 table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/mynameiseileen/nestle-chatbot/internal/content"
	"github.com/mynameiseileen/nestle-chatbot/internal/index"
)

// DefaultMaxBatch bounds one upload transaction.
const DefaultMaxBatch = 500

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config selects the database file and table.
type Config struct {
	// DSN is a modernc sqlite data source, e.g. "file:index.db" or ":memory:".
	DSN      string
	Table    string
	MaxBatch int
}

// Index stores documents in an FTS5 virtual table ranked by bm25.
type Index struct {
	db       *sql.DB
	table    string
	maxBatch int
}

// Open opens the database. A single connection is kept so ":memory:"
// databases survive across calls.
func Open(cfg Config) (*Index, error) {
	if cfg.DSN == "" {
		cfg.DSN = ":memory:"
	}
	table := cfg.Table
	if table == "" {
		table = "site_content"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, &content.FatalInitError{Component: "sqlite", Cause: err}
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &content.FatalInitError{Component: "sqlite", Cause: err}
	}
	maxBatch := cfg.MaxBatch
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	return &Index{db: db, table: table, maxBatch: maxBatch}, nil
}

// EnsureSchema creates the FTS5 table unless sqlite_master already lists it.
func (i *Index) EnsureSchema(ctx context.Context) error {
	var name string
	err := i.db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, i.table).Scan(&name)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		return &content.SchemaError{Target: i.table, Cause: err}
	}
	stmt := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING fts5(
	id UNINDEXED,
	text,
	url UNINDEXED,
	category UNINDEXED,
	tokenize = 'porter unicode61'
)`, i.table)
	if _, err := i.db.ExecContext(ctx, stmt); err != nil {
		return &content.SchemaError{Target: i.table, Cause: err}
	}
	return nil
}

// Upload inserts the batch in one transaction, replacing rows with the same id.
func (i *Index) Upload(ctx context.Context, docs []index.Document) (err error) {
	if len(docs) == 0 {
		return nil
	}
	if len(docs) > i.maxBatch {
		return fmt.Errorf("batch of %d documents exceeds limit %d", len(docs), i.maxBatch)
	}
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upload: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	del, err := tx.PrepareContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, i.table))
	if err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}
	defer del.Close()
	ins, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (id, text, url, category) VALUES (?, ?, ?, ?)`, i.table))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer ins.Close()

	for _, d := range docs {
		if _, err = del.ExecContext(ctx, d.ID); err != nil {
			return fmt.Errorf("delete %s: %w", d.ID, err)
		}
		if _, err = ins.ExecContext(ctx, d.ID, d.Text, d.URL, d.Category); err != nil {
			return fmt.Errorf("insert %s: %w", d.ID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit upload: %w", err)
	}
	return nil
}

// Search matches any query term and orders by bm25.
func (i *Index) Search(ctx context.Context, query string, k int) ([]index.Hit, error) {
	match := MatchExpression(query)
	if match == "" || k <= 0 {
		return nil, nil
	}
	stmt := fmt.Sprintf(`
SELECT id, text, url, category, highlight(%[1]s, 1, '<em>', '</em>'), bm25(%[1]s)
FROM %[1]s
WHERE %[1]s MATCH ?
ORDER BY rank
LIMIT ?`, i.table)
	rows, err := i.db.QueryContext(ctx, stmt, match, k)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()

	var hits []index.Hit
	for rows.Next() {
		var (
			h    index.Hit
			bm25 float64
		)
		if err := rows.Scan(&h.ID, &h.Text, &h.URL, &h.Category, &h.Highlight, &bm25); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		// bm25 is negative, lower is better.
		h.Score = -bm25
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hits: %w", err)
	}
	return hits, nil
}

// MatchExpression turns free text into an FTS5 query that ORs every word as
// a quoted term, so user punctuation never reaches the FTS5 parser.
func MatchExpression(question string) string {
	words := strings.FieldsFunc(question, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	terms := make([]string, 0, len(words))
	for _, w := range words {
		terms = append(terms, `"`+w+`"`)
	}
	return strings.Join(terms, " OR ")
}

// MaxBatchDocuments implements index.Index.
func (i *Index) MaxBatchDocuments() int {
	return i.maxBatch
}

// Close closes the database.
func (i *Index) Close() error {
	if err := i.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

var _ index.Index = (*Index)(nil)
