package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mynameiseileen/nestle-chatbot/internal/content"
	"github.com/mynameiseileen/nestle-chatbot/internal/index"
)

func newMockIndex(t *testing.T, maxBatch int) (*Index, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	idx, err := NewWithPool(mock, "site_content", maxBatch)
	require.NoError(t, err)
	return idx, mock
}

func TestNewWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "content; DROP TABLE users", 0)
	require.Error(t, err)
	_, err = NewWithPool(nil, "", 0)
	require.Error(t, err)

	idx, err := NewWithPool(mock, "", 0)
	require.NoError(t, err)
	assert.Equal(t, "site_content", idx.table)
	assert.Equal(t, DefaultMaxBatch, idx.MaxBatchDocuments())
}

func TestEnsureSchemaSkipsExistingTable(t *testing.T) {
	t.Parallel()

	idx, mock := newMockIndex(t, 0)
	name := "site_content"
	mock.ExpectQuery(`SELECT to_regclass`).
		WithArgs("site_content").
		WillReturnRows(pgxmock.NewRows([]string{"to_regclass"}).AddRow(&name))

	require.NoError(t, idx.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchemaCreatesMissingTable(t *testing.T) {
	t.Parallel()

	idx, mock := newMockIndex(t, 0)
	mock.ExpectQuery(`SELECT to_regclass`).
		WithArgs("site_content").
		WillReturnRows(pgxmock.NewRows([]string{"to_regclass"}).AddRow((*string)(nil)))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS site_content`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS site_content_tsv_idx`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS site_content_category_idx`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, idx.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchemaFailureIsSchemaError(t *testing.T) {
	t.Parallel()

	idx, mock := newMockIndex(t, 0)
	mock.ExpectQuery(`SELECT to_regclass`).
		WithArgs("site_content").
		WillReturnRows(pgxmock.NewRows([]string{"to_regclass"}).AddRow((*string)(nil)))
	mock.ExpectExec(`CREATE TABLE`).WillReturnError(errors.New("permission denied"))

	var schemaErr *content.SchemaError
	require.ErrorAs(t, idx.EnsureSchema(context.Background()), &schemaErr)
	assert.Equal(t, "site_content", schemaErr.Target)
}

func TestUploadInsertsBatch(t *testing.T) {
	t.Parallel()

	idx, mock := newMockIndex(t, 0)
	docs := []index.Document{
		{ID: "u1", Text: "Chocolate chip cookies", URL: "https://www.example.com/recipe/choc-chip", Category: "heading1"},
		{ID: "u2", Text: "Preheat the oven to 180C.", URL: "https://www.example.com/recipe/choc-chip", Category: "listItem"},
	}
	mock.ExpectExec(`INSERT INTO site_content`).
		WithArgs(
			[]string{"u1", "u2"},
			[]string{docs[0].Text, docs[1].Text},
			[]string{docs[0].URL, docs[1].URL},
			[]string{"heading1", "listItem"},
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	require.NoError(t, idx.Upload(context.Background(), docs))
	require.NoError(t, idx.Upload(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUploadRejectsOversizedBatch(t *testing.T) {
	t.Parallel()

	idx, mock := newMockIndex(t, 1)
	err := idx.Upload(context.Background(), []index.Document{{ID: "a"}, {ID: "b"}})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchReturnsRankedHits(t *testing.T) {
	t.Parallel()

	idx, mock := newMockIndex(t, 0)
	rows := pgxmock.NewRows([]string{"id", "text", "url", "category", "score", "highlight"}).
		AddRow("u1", "Chocolate chip cookies", "https://www.example.com/recipe/choc-chip", "heading1", 0.9, "<em>Chocolate</em> <em>chip</em> cookies").
		AddRow("u3", "Chocolate milk", "https://www.example.com/drinks", "paragraph", 0.1, "<em>Chocolate</em> milk")
	mock.ExpectQuery(`websearch_to_tsquery`).
		WithArgs("chocolate chip", 3).
		WillReturnRows(rows)

	hits, err := idx.Search(context.Background(), "chocolate chip", 3)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "https://www.example.com/recipe/choc-chip", hits[0].URL)
	assert.Equal(t, "<em>Chocolate</em> <em>chip</em> cookies", hits[0].Highlight)
	assert.InDelta(t, 0.9, hits[0].Score, 1e-9)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchPropagatesError(t *testing.T) {
	t.Parallel()

	idx, mock := newMockIndex(t, 0)
	mock.ExpectQuery(`websearch_to_tsquery`).WillReturnError(errors.New("canceling statement due to statement timeout"))
	_, err := idx.Search(context.Background(), "kitkat", 3)
	require.Error(t, err)

	hits, err := idx.Search(context.Background(), "kitkat", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
