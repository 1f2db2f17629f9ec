package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mynameiseileen/nestle-chatbot/internal/index"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(Config{DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	require.NoError(t, idx.EnsureSchema(context.Background()))
	return idx
}

var recipeDocs = []index.Document{
	{ID: "1", Text: "Chocolate milk is a classic breakfast drink.", URL: "https://www.example.com/drinks/choc-milk", Category: "paragraph"},
	{ID: "2", Text: "Toll House Chocolate Chip Cookies", URL: "https://www.example.com/recipe/choc-chip", Category: "heading1"},
	{ID: "3", Text: "Our history starts in 1866 in Vevey.", URL: "https://www.example.com/about", Category: "paragraph"},
	{ID: "4", Text: "Chip shop favourites for the whole family.", URL: "https://www.example.com/recipe/chips", Category: "paragraph"},
	{ID: "5", Text: "White chocolate macadamia bars.", URL: "https://www.example.com/recipe/white-bars", Category: "listItem"},
}

func TestSearchFindsChocolateChipRecipe(t *testing.T) {
	t.Parallel()

	idx := openTestIndex(t)
	require.NoError(t, idx.Upload(context.Background(), recipeDocs))

	hits, err := idx.Search(context.Background(), "chocolate chip", 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.LessOrEqual(t, len(hits), 3)

	urls := make([]string, 0, len(hits))
	for _, h := range hits {
		urls = append(urls, h.URL)
	}
	assert.Contains(t, urls, "https://www.example.com/recipe/choc-chip")
	assert.Equal(t, "https://www.example.com/recipe/choc-chip", hits[0].URL)
	assert.Contains(t, hits[0].Highlight, "<em>")
	for n := 1; n < len(hits); n++ {
		assert.GreaterOrEqual(t, hits[n-1].Score, hits[n].Score)
	}
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	t.Parallel()

	idx := openTestIndex(t)
	require.NoError(t, idx.EnsureSchema(context.Background()))
	require.NoError(t, idx.EnsureSchema(context.Background()))
}

func TestUploadReplacesSameID(t *testing.T) {
	t.Parallel()

	idx := openTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Upload(ctx, recipeDocs[:1]))
	updated := recipeDocs[0]
	updated.Text = "Chocolate milk, now with less sugar."
	require.NoError(t, idx.Upload(ctx, []index.Document{updated}))

	hits, err := idx.Search(ctx, "chocolate", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, updated.Text, hits[0].Text)
}

func TestUploadRejectsOversizedBatch(t *testing.T) {
	t.Parallel()

	idx, err := Open(Config{MaxBatch: 2})
	require.NoError(t, err)
	defer idx.Close()
	require.NoError(t, idx.EnsureSchema(context.Background()))

	require.Error(t, idx.Upload(context.Background(), recipeDocs))
	assert.Equal(t, 2, idx.MaxBatchDocuments())
}

func TestSearchToleratesPunctuation(t *testing.T) {
	t.Parallel()

	idx := openTestIndex(t)
	require.NoError(t, idx.Upload(context.Background(), recipeDocs))

	hits, err := idx.Search(context.Background(), `what's "Vevey"? (history) AND -`, 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "https://www.example.com/about", hits[0].URL)

	hits, err = idx.Search(context.Background(), "?!", 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestOpenRejectsBadTable(t *testing.T) {
	t.Parallel()

	_, err := Open(Config{Table: "x y"})
	require.Error(t, err)
}

func TestMatchExpression(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `"chocolate" OR "chip"`, MatchExpression("chocolate chip?"))
	assert.Equal(t, `"crème" OR "brûlée"`, MatchExpression("crème-brûlée"))
	assert.Empty(t, MatchExpression(" ... "))
}
