// Package retrieval answers a question by querying the full-text index and
// the knowledge graph concurrently and fusing both into one context bundle.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mynameiseileen/nestle-chatbot/internal/graph"
	"github.com/mynameiseileen/nestle-chatbot/internal/index"
	"github.com/mynameiseileen/nestle-chatbot/internal/metrics"
)

// Defaults for source timeouts and lexical depth.
const (
	DefaultTopK           = 3
	DefaultLexicalTimeout = 5 * time.Second
	DefaultGraphTimeout   = 5 * time.Second
)

// Source names used in logs and metrics.
const (
	SourceLexical = "lexical"
	SourceGraph   = "graph"
)

// Searcher is the lexical side of retrieval.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]index.Hit, error)
}

// RelationFinder is the graph side of retrieval.
type RelationFinder interface {
	Related(ctx context.Context, question string) ([]graph.Relation, error)
}

// Config bounds each source.
type Config struct {
	TopK           int
	LexicalTimeout time.Duration
	GraphTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.LexicalTimeout <= 0 {
		c.LexicalTimeout = DefaultLexicalTimeout
	}
	if c.GraphTimeout <= 0 {
		c.GraphTimeout = DefaultGraphTimeout
	}
	return c
}

// Orchestrator fans a question out to both sources.
type Orchestrator struct {
	lexical Searcher
	graph   RelationFinder
	cfg     Config
	logger  *zap.Logger
}

// New builds an Orchestrator. Either source may be nil, in which case it
// contributes nothing.
func New(lexical Searcher, relations RelationFinder, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		lexical: lexical,
		graph:   relations,
		cfg:     cfg.withDefaults(),
		logger:  logger.Named("retrieval"),
	}
}

// Retrieve runs both queries and waits for each to finish or time out. A
// failing source is logged and contributes an empty result.
func (o *Orchestrator) Retrieve(ctx context.Context, question string) Bundle {
	question = strings.TrimSpace(question)
	bundle := Bundle{Question: question, Snippets: []Snippet{}, Relations: []Relation{}}
	if question == "" {
		return bundle
	}

	var (
		snippets  []Snippet
		relations []Relation
	)
	// Goroutines never return errors, so one source cannot cancel the other.
	var g errgroup.Group
	g.Go(func() error {
		snippets = o.lexicalSnippets(ctx, question)
		return nil
	})
	g.Go(func() error {
		relations = o.graphRelations(ctx, question)
		return nil
	})
	_ = g.Wait()

	if snippets != nil {
		bundle.Snippets = snippets
	}
	if relations != nil {
		bundle.Relations = relations
	}
	o.logger.Info("retrieval finished",
		zap.Int("snippets", len(bundle.Snippets)),
		zap.Int("relations", len(bundle.Relations)),
	)
	return bundle
}

func (o *Orchestrator) lexicalSnippets(ctx context.Context, question string) []Snippet {
	if o.lexical == nil {
		return nil
	}
	start := time.Now()
	hits, err := callWithTimeout(ctx, o.cfg.LexicalTimeout, func(ctx context.Context) ([]index.Hit, error) {
		return o.lexical.Search(ctx, question, o.cfg.TopK)
	})
	metrics.ObserveRetrieval(SourceLexical, err, time.Since(start))
	if err != nil {
		o.logger.Warn("lexical search failed", zap.Error(err))
		return nil
	}
	if len(hits) > o.cfg.TopK {
		hits = hits[:o.cfg.TopK]
	}
	out := make([]Snippet, 0, len(hits))
	for _, h := range hits {
		if h.URL == "" {
			continue
		}
		out = append(out, Snippet{Text: h.Text, URL: h.URL, Highlight: h.Highlight})
	}
	return out
}

func (o *Orchestrator) graphRelations(ctx context.Context, question string) []Relation {
	if o.graph == nil {
		return nil
	}
	start := time.Now()
	found, err := callWithTimeout(ctx, o.cfg.GraphTimeout, func(ctx context.Context) ([]graph.Relation, error) {
		return o.graph.Related(ctx, question)
	})
	metrics.ObserveRetrieval(SourceGraph, err, time.Since(start))
	if err != nil {
		o.logger.Warn("graph search failed", zap.Error(err))
		return nil
	}
	out := make([]Relation, 0, len(found))
	for _, r := range found {
		if r.SourceURL == "" || r.TargetURL == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

// callWithTimeout returns when fn does or when the timeout fires, whichever
// is first. A source that ignores its context is abandoned, not awaited.
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		val, err := fn(ctx)
		done <- result{val: val, err: err}
	}()
	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("source timed out: %w", ctx.Err())
	}
}
