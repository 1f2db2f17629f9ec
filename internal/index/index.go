// Package index publishes normalized content to a full-text search index and
// defines the index backends the retrieval path queries.
package index

import "context"

// Document is the index-side projection of a content record. ID is a
// synthetic upload id unrelated to the graph node id.
type Document struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	URL      string `json:"url"`
	Category string `json:"category"`
}

// Hit is one ranked search result.
type Hit struct {
	ID       string  `json:"id"`
	Text     string  `json:"text"`
	URL      string  `json:"url"`
	Category string  `json:"category"`
	// Highlight holds the matched fragment with <em> markers, when the
	// backend produces one.
	Highlight string  `json:"highlight,omitempty"`
	Score     float64 `json:"score"`
}

// Index is a full-text search backend.
type Index interface {
	// EnsureSchema checks for the index and creates it when missing.
	EnsureSchema(ctx context.Context) error
	// Upload writes one batch. Batches larger than MaxBatchDocuments are
	// rejected.
	Upload(ctx context.Context, docs []Document) error
	// Search returns up to k hits ranked by the backend's relevance score.
	Search(ctx context.Context, query string, k int) ([]Hit, error)
	// MaxBatchDocuments is the per-call document ceiling.
	MaxBatchDocuments() int
	Close() error
}
