package graph

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Search defaults.
const (
	DefaultThreshold    = 0.6
	DefaultMaxRelations = 10
)

// SearchConfig tunes relation scoring.
type SearchConfig struct {
	// Threshold is the exclusive lower bound for a rounded score.
	Threshold    float64
	MaxRelations int
}

func (c SearchConfig) withDefaults() SearchConfig {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.MaxRelations <= 0 {
		c.MaxRelations = DefaultMaxRelations
	}
	return c
}

// Relation is a scored RELATED_TO edge returned to callers.
type Relation struct {
	Source       string  `json:"source"`
	Relationship string  `json:"relationship"`
	Target       string  `json:"target"`
	SourceURL    string  `json:"source_url"`
	TargetURL    string  `json:"target_url"`
	Confidence   float64 `json:"confidence"`
}

// Searcher finds relations whose endpoints mention a question.
type Searcher struct {
	store      Store
	similarity Similarity
	cfg        SearchConfig
	logger     *zap.Logger
}

// NewSearcher builds a Searcher. A nil similarity uses DiceSimilarity.
func NewSearcher(store Store, similarity Similarity, cfg SearchConfig, logger *zap.Logger) *Searcher {
	if similarity == nil {
		similarity = NewDiceSimilarity()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Searcher{
		store:      store,
		similarity: similarity,
		cfg:        cfg.withDefaults(),
		logger:     logger.Named("graph_search"),
	}
}

// Related scores every candidate pair for question and returns those above
// the threshold, most similar first, capped at MaxRelations. Confidence is
// rounded to two decimals before the threshold is applied.
func (s *Searcher) Related(ctx context.Context, question string) ([]Relation, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, nil
	}
	pairs, err := s.store.CandidatePairs(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("query candidate pairs: %w", err)
	}

	relations := make([]Relation, 0, len(pairs))
	for _, p := range pairs {
		score := round2(s.similarity.Score(p.Source.Text, p.Target.Text))
		if score <= s.cfg.Threshold {
			continue
		}
		relations = append(relations, Relation{
			Source:       p.Source.Text,
			Relationship: Relationship,
			Target:       p.Target.Text,
			SourceURL:    p.Source.URL,
			TargetURL:    p.Target.URL,
			Confidence:   score,
		})
	}
	sort.SliceStable(relations, func(i, j int) bool {
		return relations[i].Confidence > relations[j].Confidence
	})
	if len(relations) > s.cfg.MaxRelations {
		relations = relations[:s.cfg.MaxRelations]
	}
	s.logger.Debug("graph relations scored",
		zap.Int("candidates", len(pairs)),
		zap.Int("relations", len(relations)),
	)
	return relations, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
