package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/mynameiseileen/nestle-chatbot/internal/content"
	"github.com/mynameiseileen/nestle-chatbot/internal/metrics"
)

// Default batch sizes.
const (
	DefaultNodeBatchSize = 100
	DefaultEdgeBatchSize = 50
)

// IngestConfig tunes batching and edge inference.
type IngestConfig struct {
	NodeBatchSize    int
	EdgeBatchSize    int
	MinHeadingLength int
}

func (c IngestConfig) withDefaults() IngestConfig {
	if c.NodeBatchSize <= 0 {
		c.NodeBatchSize = DefaultNodeBatchSize
	}
	if c.EdgeBatchSize <= 0 {
		c.EdgeBatchSize = DefaultEdgeBatchSize
	}
	if c.MinHeadingLength <= 0 {
		c.MinHeadingLength = content.MinHeadingLength
	}
	return c
}

// IngestReport counts what one ingestion run wrote and skipped.
type IngestReport struct {
	Nodes             int `json:"nodes"`
	NodeBatches       int `json:"node_batches"`
	FailedNodeBatches int `json:"failed_node_batches"`
	Headings          int `json:"headings"`
	EdgeBatches       int `json:"edge_batches"`
	FailedEdgeBatches int `json:"failed_edge_batches"`
	Edges             int `json:"edges"`
}

// Failed returns the number of failed batches across both phases.
func (r IngestReport) Failed() int {
	return r.FailedNodeBatches + r.FailedEdgeBatches
}

// Ingestor writes normalized content to a Store in two batched phases.
type Ingestor struct {
	store  Store
	cfg    IngestConfig
	logger *zap.Logger
}

// NewIngestor builds an Ingestor.
func NewIngestor(store Store, cfg IngestConfig, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		store:  store,
		cfg:    cfg.withDefaults(),
		logger: logger.Named("graph"),
	}
}

// EnsureSchema sets up constraints and indexes. Failures are logged and
// returned as *content.SchemaError; callers may continue past them since the
// schema usually exists already.
func (i *Ingestor) EnsureSchema(ctx context.Context) error {
	if err := i.store.EnsureSchema(ctx); err != nil {
		var schemaErr *content.SchemaError
		if !errors.As(err, &schemaErr) {
			err = &content.SchemaError{Target: "graph", Cause: err}
		}
		i.logger.Warn("graph schema setup failed", zap.Error(err))
		return err
	}
	return nil
}

// Ingest upserts every graph-eligible item as a node, then links headings to
// the body nodes of their page. A failed batch is logged, counted and
// skipped. The returned error joins every *content.GraphWriteError, plus the
// context error when ctx ends the run early.
func (i *Ingestor) Ingest(ctx context.Context, items []content.Normalized) (IngestReport, error) {
	var (
		report   IngestReport
		errs     []error
		nodes    []content.Normalized
		headings []content.Normalized
	)
	for _, item := range items {
		if !item.Type.GraphEligible() {
			continue
		}
		nodes = append(nodes, item)
		if item.Type.IsHeading() {
			headings = append(headings, item)
		}
	}
	report.Headings = len(headings)

	batchNo := 0
	for batch := range slices.Chunk(nodes, i.cfg.NodeBatchSize) {
		if err := ctx.Err(); err != nil {
			return report, errors.Join(append(errs, fmt.Errorf("graph ingest canceled: %w", err))...)
		}
		report.NodeBatches++
		if err := i.store.UpsertNodes(ctx, batch); err != nil {
			report.FailedNodeBatches++
			werr := &content.GraphWriteError{Phase: "nodes", Batch: batchNo, Cause: err}
			errs = append(errs, werr)
			metrics.ObserveBatch("graph", "nodes", metrics.OutcomeFailure)
			i.logger.Warn("node batch failed, skipping", zap.Int("batch", batchNo), zap.Int("size", len(batch)), zap.Error(err))
		} else {
			report.Nodes += len(batch)
			metrics.ObserveBatch("graph", "nodes", metrics.OutcomeSuccess)
		}
		batchNo++
	}

	batchNo = 0
	for batch := range slices.Chunk(headings, i.cfg.EdgeBatchSize) {
		if err := ctx.Err(); err != nil {
			return report, errors.Join(append(errs, fmt.Errorf("graph ingest canceled: %w", err))...)
		}
		report.EdgeBatches++
		edges, err := i.store.LinkSections(ctx, batch, i.cfg.MinHeadingLength)
		if err != nil {
			report.FailedEdgeBatches++
			werr := &content.GraphWriteError{Phase: "edges", Batch: batchNo, Cause: err}
			errs = append(errs, werr)
			metrics.ObserveBatch("graph", "edges", metrics.OutcomeFailure)
			i.logger.Warn("edge batch failed, skipping", zap.Int("batch", batchNo), zap.Int("size", len(batch)), zap.Error(err))
		} else {
			report.Edges += edges
			metrics.ObserveBatch("graph", "edges", metrics.OutcomeSuccess)
		}
		batchNo++
	}

	i.logger.Info("graph ingest finished",
		zap.Int("nodes", report.Nodes),
		zap.Int("edges", report.Edges),
		zap.Int("failed_batches", report.Failed()),
	)
	return report, errors.Join(errs...)
}
