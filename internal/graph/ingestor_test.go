package graph_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mynameiseileen/nestle-chatbot/internal/content"
	"github.com/mynameiseileen/nestle-chatbot/internal/crawler"
	"github.com/mynameiseileen/nestle-chatbot/internal/graph"
	"github.com/mynameiseileen/nestle-chatbot/internal/graph/memory"
)

const funFactsPage = `<html><body>
	<h2>Fun Facts</h2>
	<p>Fun Facts about KitKat: it was first sold in 1935.</p>
</body></html>`

func normalizedPage(t *testing.T, url, html string) []content.Normalized {
	t.Helper()
	page, err := crawler.ParseHTML(url, html)
	require.NoError(t, err)
	return content.Normalize(page.Items)
}

func TestIngestLinksHeadingToParagraph(t *testing.T) {
	t.Parallel()

	items := normalizedPage(t, "https://www.example.com/", funFactsPage)
	store := memory.New()
	ing := graph.NewIngestor(store, graph.IngestConfig{}, zap.NewNop())

	report, err := ing.Ingest(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 2, store.NodeCount())
	assert.Equal(t, 2, report.Nodes)
	assert.Equal(t, 1, report.Headings)
	require.Len(t, store.Edges(), 1)

	edge := store.Edges()[0]
	head, ok := store.Node(edge.From)
	require.True(t, ok)
	body, ok := store.Node(edge.To)
	require.True(t, ok)
	assert.Equal(t, content.TypeHeading2, head.Type)
	assert.Equal(t, content.TypeParagraph, body.Type)
	assert.Equal(t, graph.SectionContext, edge.Context)
}

func TestIngestTwiceKeepsCountsStable(t *testing.T) {
	t.Parallel()

	items := normalizedPage(t, "https://www.example.com/", funFactsPage)
	store := memory.New()
	ing := graph.NewIngestor(store, graph.IngestConfig{}, zap.NewNop())

	_, err := ing.Ingest(context.Background(), items)
	require.NoError(t, err)
	nodes, edges := store.NodeCount(), len(store.Edges())

	_, err = ing.Ingest(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, nodes, store.NodeCount())
	assert.Equal(t, edges, len(store.Edges()))
}

func TestIngestNeverLinksAcrossURLs(t *testing.T) {
	t.Parallel()

	items := []content.Normalized{
		{ID: "a_h", Text: "Fun Facts", Type: content.TypeHeading2, URL: "https://www.example.com/a"},
		{ID: "b_p", Text: "Fun Facts about chocolate bars.", Type: content.TypeParagraph, URL: "https://www.example.com/b"},
	}
	store := memory.New()
	report, err := graph.NewIngestor(store, graph.IngestConfig{}, zap.NewNop()).Ingest(context.Background(), items)
	require.NoError(t, err)
	assert.Zero(t, report.Edges)
	assert.Empty(t, store.Edges())
}

func TestIngestSkipsShortHeadingsAndNonBodyTargets(t *testing.T) {
	t.Parallel()

	url := "https://www.example.com/"
	items := []content.Normalized{
		{ID: "h_short", Text: "Tip", Type: content.TypeHeading3, URL: url},
		{ID: "h_long", Text: "Baking Tips", Type: content.TypeHeading2, URL: url},
		{ID: "h_other", Text: "Baking Tips for beginners", Type: content.TypeHeading3, URL: url},
		{ID: "p", Text: "Tip: Baking Tips work best cold.", Type: content.TypeParagraph, URL: url},
		{ID: "li", Text: "Baking Tips from our kitchen", Type: content.TypeListItem, URL: url},
	}
	store := memory.New()
	report, err := graph.NewIngestor(store, graph.IngestConfig{}, zap.NewNop()).Ingest(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Edges)
	for _, e := range store.Edges() {
		assert.Equal(t, "h_long", e.From)
		assert.Contains(t, []string{"p", "li"}, e.To)
	}
}

func TestIngestContinuesPastFailedNodeBatch(t *testing.T) {
	t.Parallel()

	url := "https://www.example.com/"
	items := []content.Normalized{
		{ID: "n1", Text: "First paragraph of text.", Type: content.TypeParagraph, URL: url},
		{ID: "n2", Text: "Second paragraph of text.", Type: content.TypeParagraph, URL: url},
		{ID: "n3", Text: "Third paragraph of text.", Type: content.TypeParagraph, URL: url},
	}
	store := memory.New()
	boom := errors.New("write conflict")
	store.FailUpserts = map[string]error{"n2": boom}

	ing := graph.NewIngestor(store, graph.IngestConfig{NodeBatchSize: 1}, zap.NewNop())
	report, err := ing.Ingest(context.Background(), items)
	require.Error(t, err)

	var writeErr *content.GraphWriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, "nodes", writeErr.Phase)
	assert.Equal(t, 1, writeErr.Batch)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 3, report.NodeBatches)
	assert.Equal(t, 1, report.FailedNodeBatches)
	assert.Equal(t, 2, report.Nodes)
	assert.Equal(t, 2, store.NodeCount())
	_, ok := store.Node("n3")
	assert.True(t, ok)
}

type failingLinkStore struct {
	*memory.Store
	calls int
}

func (s *failingLinkStore) LinkSections(ctx context.Context, headings []content.Normalized, minLen int) (int, error) {
	s.calls++
	if s.calls == 1 {
		return 0, errors.New("deadlock detected")
	}
	return s.Store.LinkSections(ctx, headings, minLen)
}

func TestIngestContinuesPastFailedEdgeBatch(t *testing.T) {
	t.Parallel()

	url := "https://www.example.com/"
	items := []content.Normalized{
		{ID: "h1", Text: "Fun Facts", Type: content.TypeHeading2, URL: url},
		{ID: "h2", Text: "Our History", Type: content.TypeHeading2, URL: url},
		{ID: "p1", Text: "Fun Facts about our wafers.", Type: content.TypeParagraph, URL: url},
		{ID: "p2", Text: "Our History began in 1866.", Type: content.TypeParagraph, URL: url},
	}
	store := &failingLinkStore{Store: memory.New()}
	ing := graph.NewIngestor(store, graph.IngestConfig{EdgeBatchSize: 1}, zap.NewNop())

	report, err := ing.Ingest(context.Background(), items)
	var writeErr *content.GraphWriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, "edges", writeErr.Phase)
	assert.Equal(t, 2, report.EdgeBatches)
	assert.Equal(t, 1, report.FailedEdgeBatches)
	assert.Equal(t, 1, report.Edges)
	require.Len(t, store.Edges(), 1)
	assert.Equal(t, "h2", store.Edges()[0].From)
}

func TestIngestStopsWhenContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	items := normalizedPage(t, "https://www.example.com/", funFactsPage)
	_, err := graph.NewIngestor(memory.New(), graph.IngestConfig{}, nil).Ingest(ctx, items)
	require.ErrorIs(t, err, context.Canceled)
}

type schemaFailStore struct {
	*memory.Store
}

func (schemaFailStore) EnsureSchema(context.Context) error {
	return errors.New("constraint already exists")
}

func TestEnsureSchemaWrapsFailure(t *testing.T) {
	t.Parallel()

	ing := graph.NewIngestor(schemaFailStore{memory.New()}, graph.IngestConfig{}, zap.NewNop())
	err := ing.EnsureSchema(context.Background())
	var schemaErr *content.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "graph", schemaErr.Target)

	require.NoError(t, graph.NewIngestor(memory.New(), graph.IngestConfig{}, nil).EnsureSchema(context.Background()))
}
