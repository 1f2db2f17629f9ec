// Package graph ingests normalized content into a knowledge graph of content
// nodes linked heading to body by RELATED_TO edges, and answers relation
// queries against it.
package graph

import (
	"context"

	"github.com/mynameiseileen/nestle-chatbot/internal/content"
)

// Relationship names the only edge type the graph holds.
const Relationship = "RELATED_TO"

// SectionContext is the context tag stored on every RELATED_TO edge.
const SectionContext = "section"

// Store is a graph database holding content nodes and RELATED_TO edges.
type Store interface {
	// EnsureSchema creates the id uniqueness constraint and the type/url
	// indexes when missing.
	EnsureSchema(ctx context.Context) error
	// UpsertNodes merges nodes by id in a single transaction, overwriting
	// text, type and url of existing nodes.
	UpsertNodes(ctx context.Context, nodes []content.Normalized) error
	// LinkSections merges a RELATED_TO edge from every heading longer than
	// minHeadingLength runes to each paragraph or list item on the same url
	// whose text contains the heading text. It returns the number of edges
	// merged.
	LinkSections(ctx context.Context, headings []content.Normalized, minHeadingLength int) (int, error)
	// CandidatePairs returns every linked pair where either endpoint
	// contains question, ignoring case. Scoring happens after retrieval, so
	// the store must not truncate.
	CandidatePairs(ctx context.Context, question string) ([]Pair, error)
	Close(ctx context.Context) error
}

// Endpoint is one side of a RELATED_TO edge.
type Endpoint struct {
	ID   string
	Text string
	URL  string
}

// Pair is a linked heading and body node.
type Pair struct {
	Source Endpoint
	Target Endpoint
}
