package index

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/mynameiseileen/nestle-chatbot/internal/content"
	"github.com/mynameiseileen/nestle-chatbot/internal/metrics"
	"github.com/mynameiseileen/nestle-chatbot/internal/policy/ratelimit"
)

// Publisher defaults.
const (
	DefaultMaxTextLength = 1000
	DefaultBatchSize     = 1000
	DefaultBatchPause    = 500 * time.Millisecond
)

// IDGenerator issues upload ids.
type IDGenerator interface {
	NewID() (string, error)
}

// PublishConfig tunes document mapping and batching.
type PublishConfig struct {
	MaxTextLength int
	// BatchSize is capped by the index's MaxBatchDocuments.
	BatchSize int
	// BatchPause is the minimum spacing between batch uploads. Negative
	// disables pacing.
	BatchPause time.Duration
}

func (c PublishConfig) withDefaults() PublishConfig {
	if c.MaxTextLength <= 0 {
		c.MaxTextLength = DefaultMaxTextLength
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchPause == 0 {
		c.BatchPause = DefaultBatchPause
	}
	return c
}

// PublishReport summarizes one publish run.
type PublishReport struct {
	Documents     int `json:"documents"`
	Batches       int `json:"batches"`
	FailedBatches int `json:"failed_batches"`
	Uploaded      int `json:"uploaded"`
}

// batchPacer gates each upload so batches start at least BatchPause apart.
type batchPacer interface {
	Wait(ctx context.Context) error
}

// Publisher uploads content to an Index in bounded batches.
type Publisher struct {
	index  Index
	ids    IDGenerator
	cfg    PublishConfig
	logger *zap.Logger
	pacer  batchPacer
}

// NewPublisher builds a Publisher.
func NewPublisher(idx Index, ids IDGenerator, cfg PublishConfig, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Publisher{
		index:  idx,
		ids:    ids,
		cfg:    cfg,
		logger: logger.Named("index"),
		pacer:  ratelimit.NewPacer(cfg.BatchPause),
	}
}

// EnsureSchema prepares the index. Failures come back as *content.SchemaError.
func (p *Publisher) EnsureSchema(ctx context.Context) error {
	if err := p.index.EnsureSchema(ctx); err != nil {
		var schemaErr *content.SchemaError
		if !errors.As(err, &schemaErr) {
			err = &content.SchemaError{Target: "index", Cause: err}
		}
		p.logger.Warn("index schema setup failed", zap.Error(err))
		return err
	}
	return nil
}

// BatchSize is the effective per-upload document count.
func (p *Publisher) BatchSize() int {
	size := p.cfg.BatchSize
	if limit := p.index.MaxBatchDocuments(); limit > 0 && limit < size {
		size = limit
	}
	return size
}

// Documents maps content to index documents with fresh upload ids.
func (p *Publisher) Documents(items []content.Normalized) ([]Document, error) {
	docs := make([]Document, 0, len(items))
	for _, item := range items {
		id, err := p.ids.NewID()
		if err != nil {
			return nil, fmt.Errorf("upload id: %w", err)
		}
		docs = append(docs, Document{
			ID:       id,
			Text:     Truncate(item.Text, p.cfg.MaxTextLength),
			URL:      item.URL,
			Category: string(item.Type),
		})
	}
	return docs, nil
}

// Publish uploads items batch by batch. A failed batch is logged and counted
// and the remaining batches still run; the returned error joins every
// *content.IndexWriteError.
func (p *Publisher) Publish(ctx context.Context, items []content.Normalized) (PublishReport, error) {
	report := PublishReport{Documents: len(items)}
	docs, err := p.Documents(items)
	if err != nil {
		return report, err
	}

	var errs []error
	size := p.BatchSize()
	batchNo := 0
	for batch := range slices.Chunk(docs, size) {
		if err := p.pacer.Wait(ctx); err != nil {
			return report, errors.Join(append(errs, fmt.Errorf("index publish canceled: %w", err))...)
		}
		report.Batches++
		if err := p.index.Upload(ctx, batch); err != nil {
			report.FailedBatches++
			errs = append(errs, &content.IndexWriteError{Batch: batchNo, Cause: err})
			metrics.ObserveBatch("index", "documents", metrics.OutcomeFailure)
			p.logger.Warn("index batch failed, skipping", zap.Int("batch", batchNo), zap.Int("size", len(batch)), zap.Error(err))
		} else {
			report.Uploaded += len(batch)
			metrics.ObserveBatch("index", "documents", metrics.OutcomeSuccess)
		}
		batchNo++
	}

	p.logger.Info("index publish finished",
		zap.Int("documents", report.Documents),
		zap.Int("batches", report.Batches),
		zap.Int("failed_batches", report.FailedBatches),
	)
	return report, errors.Join(errs...)
}

// Truncate cuts s to at most limit runes.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
