// Package memory provides an in-process graph.Store for tests and local runs.
package memory

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/mynameiseileen/nestle-chatbot/internal/content"
	"github.com/mynameiseileen/nestle-chatbot/internal/graph"
)

type edgeKey struct {
	from string
	to   string
}

// Edge is a stored RELATED_TO edge.
type Edge struct {
	From    string
	To      string
	Context string
}

// Store keeps nodes and edges in maps, preserving insertion order.
type Store struct {
	mu        sync.RWMutex
	nodes     map[string]content.Normalized
	order     []string
	edges     map[edgeKey]Edge
	edgeOrder []edgeKey
	// FailUpserts makes UpsertNodes fail for batches containing these ids.
	FailUpserts map[string]error
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		nodes: make(map[string]content.Normalized),
		edges: make(map[edgeKey]Edge),
	}
}

// EnsureSchema is a no-op; ids are unique by construction.
func (s *Store) EnsureSchema(context.Context) error {
	return nil
}

// UpsertNodes merges nodes by id. The batch is applied all or nothing.
func (s *Store) UpsertNodes(ctx context.Context, nodes []content.Normalized) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range nodes {
		if err, ok := s.FailUpserts[n.ID]; ok {
			return err
		}
	}
	for _, n := range nodes {
		if _, exists := s.nodes[n.ID]; !exists {
			s.order = append(s.order, n.ID)
		}
		s.nodes[n.ID] = n
	}
	return nil
}

// LinkSections implements graph.Store.
func (s *Store) LinkSections(ctx context.Context, headings []content.Normalized, minHeadingLength int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := 0
	for _, h := range headings {
		head, ok := s.nodes[h.ID]
		if !ok || utf8.RuneCountInString(head.Text) <= minHeadingLength {
			continue
		}
		for _, id := range s.order {
			body := s.nodes[id]
			if body.ID == head.ID || body.URL != head.URL || !body.Type.IsBody() {
				continue
			}
			if !strings.Contains(body.Text, head.Text) {
				continue
			}
			key := edgeKey{from: head.ID, to: body.ID}
			if _, exists := s.edges[key]; !exists {
				s.edgeOrder = append(s.edgeOrder, key)
			}
			s.edges[key] = Edge{From: head.ID, To: body.ID, Context: graph.SectionContext}
			merged++
		}
	}
	return merged, nil
}

// CandidatePairs implements graph.Store.
func (s *Store) CandidatePairs(ctx context.Context, question string) ([]graph.Pair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := strings.ToLower(question)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []graph.Pair
	for _, key := range s.edgeOrder {
		from, to := s.nodes[key.from], s.nodes[key.to]
		if !strings.Contains(strings.ToLower(from.Text), q) && !strings.Contains(strings.ToLower(to.Text), q) {
			continue
		}
		out = append(out, graph.Pair{
			Source: graph.Endpoint{ID: from.ID, Text: from.Text, URL: from.URL},
			Target: graph.Endpoint{ID: to.ID, Text: to.Text, URL: to.URL},
		})
	}
	return out, nil
}

// Close is a no-op.
func (s *Store) Close(context.Context) error {
	return nil
}

// NodeCount returns the number of stored nodes.
func (s *Store) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Edges returns the stored edges in creation order.
func (s *Store) Edges() []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Edge, 0, len(s.edgeOrder))
	for _, key := range s.edgeOrder {
		out = append(out, s.edges[key])
	}
	return out
}

// Node returns the node stored under id.
func (s *Store) Node(id string) (content.Normalized, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	return n, ok
}

var _ graph.Store = (*Store)(nil)
