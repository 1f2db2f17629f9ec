// Package pipeline runs one full acquisition: crawl the site, then fan the
// normalized content out to the knowledge graph and the search index.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mynameiseileen/nestle-chatbot/internal/clock/system"
	"github.com/mynameiseileen/nestle-chatbot/internal/content"
	"github.com/mynameiseileen/nestle-chatbot/internal/crawler"
	"github.com/mynameiseileen/nestle-chatbot/internal/graph"
	"github.com/mynameiseileen/nestle-chatbot/internal/index"
	"github.com/mynameiseileen/nestle-chatbot/internal/retry"
)

// Defaults for start-up retries.
const (
	DefaultInitAttempts = retry.DefaultAttempts
	DefaultInitBackoff  = retry.DefaultBackoff
)

// RendererFactory launches a fresh rendering context for one crawl attempt.
type RendererFactory func(ctx context.Context) (crawler.Renderer, error)

// GraphSink receives normalized content for the knowledge graph.
type GraphSink interface {
	EnsureSchema(ctx context.Context) error
	Ingest(ctx context.Context, items []content.Normalized) (graph.IngestReport, error)
}

// IndexSink receives normalized content for the full-text index.
type IndexSink interface {
	EnsureSchema(ctx context.Context) error
	Publish(ctx context.Context, items []content.Normalized) (index.PublishReport, error)
}

// Archive stores finished snapshots.
type Archive interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Notifier announces finished runs.
type Notifier interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock supplies timestamps.
type Clock interface {
	Now() time.Time
}

// IDGenerator issues snapshot versions.
type IDGenerator interface {
	NewID() (string, error)
}

// Config tunes one acquisition run.
type Config struct {
	Crawler      crawler.Config
	InitAttempts int
	InitBackoff  time.Duration
	// ArchivePrefix is the object prefix snapshots are written under.
	ArchivePrefix string
	NotifyTopic   string
}

func (c Config) withDefaults() Config {
	if c.ArchivePrefix == "" {
		c.ArchivePrefix = "snapshots"
	}
	if c.NotifyTopic == "" {
		c.NotifyTopic = "ingest-completed"
	}
	return c
}

// Deps are the collaborators of a Pipeline. Graph, Index, Archive and
// Notifier are optional.
type Deps struct {
	Renderers RendererFactory
	Graph     GraphSink
	Index     IndexSink
	Archive   Archive
	Notifier  Notifier
	Clock     Clock
	IDs       IDGenerator
}

// Pipeline runs acquisitions. It is safe for sequential reuse; callers that
// may trigger runs concurrently must serialize them.
type Pipeline struct {
	cfg     Config
	deps    Deps
	logger  *zap.Logger
	retrier *retry.Runner
}

// New builds a Pipeline.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Pipeline, error) {
	if deps.Renderers == nil {
		return nil, fmt.Errorf("renderer factory is required")
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.IDs == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("pipeline")
	return &Pipeline{
		cfg:     cfg.withDefaults(),
		deps:    deps,
		logger:  logger,
		retrier: retry.New(retry.Policy{Attempts: cfg.InitAttempts, Backoff: cfg.InitBackoff}, logger),
	}, nil
}

// IngestFullSite crawls the site and writes the result to the graph and the
// index. Only a crawl that cannot start after every retry, or cancellation,
// fails the run; batch failures are reported in the snapshot summary.
func (p *Pipeline) IngestFullSite(ctx context.Context) (*Snapshot, error) {
	version, err := p.deps.IDs.NewID()
	if err != nil {
		return nil, fmt.Errorf("snapshot version: %w", err)
	}
	snap := &Snapshot{Version: version, StartedAt: p.deps.Clock.Now()}
	logger := p.logger.With(zap.String("version", version))
	logger.Info("acquisition started", zap.String("base_url", p.cfg.Crawler.BaseURL))

	result, attempts, err := p.crawl(ctx, logger)
	snap.Summary.InitAttempts = attempts
	if err != nil {
		return nil, err
	}
	snap.Content = result.Content
	snap.Summary.Crawl = result.Stats

	p.ensureSchemas(ctx)
	p.fanOut(ctx, snap, logger)
	snap.FinishedAt = p.deps.Clock.Now()

	p.archive(ctx, snap, logger)
	p.notify(ctx, snap, logger)

	logger.Info("acquisition finished",
		zap.Int("items", snap.ItemCount()),
		zap.Duration("elapsed", snap.FinishedAt.Sub(snap.StartedAt)),
	)
	return snap, nil
}

// crawl retries the whole crawl while the renderer fails to start.
func (p *Pipeline) crawl(ctx context.Context, logger *zap.Logger) (crawler.Result, int, error) {
	return retry.Do(ctx, p.retrier, "crawl", func(ctx context.Context) (crawler.Result, error) {
		return p.crawlOnce(ctx, logger)
	})
}

func (p *Pipeline) crawlOnce(ctx context.Context, logger *zap.Logger) (result crawler.Result, err error) {
	renderer, err := p.deps.Renderers(ctx)
	if err != nil {
		return crawler.Result{}, err
	}
	defer func() {
		if cerr := renderer.Close(); cerr != nil {
			logger.Warn("renderer close failed", zap.Error(cerr))
		}
	}()
	scheduler, err := crawler.NewScheduler(p.cfg.Crawler, renderer, logger)
	if err != nil {
		return crawler.Result{}, fmt.Errorf("build scheduler: %w", err)
	}
	return scheduler.Run(ctx)
}

// ensureSchemas runs idempotent schema setup. Failures are logged by the
// sinks and do not stop the run.
func (p *Pipeline) ensureSchemas(ctx context.Context) {
	if p.deps.Graph != nil {
		_ = p.deps.Graph.EnsureSchema(ctx)
	}
	if p.deps.Index != nil {
		_ = p.deps.Index.EnsureSchema(ctx)
	}
}

// fanOut writes to the graph and the index concurrently. Neither sink's
// failure cancels the other.
func (p *Pipeline) fanOut(ctx context.Context, snap *Snapshot, logger *zap.Logger) {
	var g errgroup.Group
	if p.deps.Graph != nil {
		g.Go(func() error {
			report, err := p.deps.Graph.Ingest(ctx, snap.Content)
			snap.Summary.Graph = report
			if err != nil {
				snap.Summary.GraphError = err.Error()
				logger.Warn("graph ingest incomplete", zap.Int("failed_batches", report.Failed()), zap.Error(err))
			}
			return nil
		})
	}
	if p.deps.Index != nil {
		g.Go(func() error {
			report, err := p.deps.Index.Publish(ctx, snap.Content)
			snap.Summary.Index = report
			if err != nil {
				snap.Summary.IndexError = err.Error()
				logger.Warn("index publish incomplete", zap.Int("failed_batches", report.FailedBatches), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Pipeline) archive(ctx context.Context, snap *Snapshot, logger *zap.Logger) {
	if p.deps.Archive == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		logger.Warn("snapshot encode failed", zap.Error(err))
		return
	}
	key := path.Join(p.cfg.ArchivePrefix, snap.Version+".json")
	uri, err := p.deps.Archive.PutObject(ctx, key, "application/json", bytes.NewReader(data))
	if err != nil {
		logger.Warn("snapshot archive failed", zap.String("path", key), zap.Error(err))
		return
	}
	snap.Summary.ArchiveURI = uri
	logger.Info("snapshot archived", zap.String("uri", uri))
}

func (p *Pipeline) notify(ctx context.Context, snap *Snapshot, logger *zap.Logger) {
	if p.deps.Notifier == nil {
		return
	}
	msg := Notification{
		Version:    snap.Version,
		Items:      snap.ItemCount(),
		FinishedAt: snap.FinishedAt,
		Summary:    snap.Summary,
	}
	id, err := p.deps.Notifier.Publish(ctx, p.cfg.NotifyTopic, msg)
	if err != nil {
		logger.Warn("ingest notification failed", zap.String("topic", p.cfg.NotifyTopic), zap.Error(err))
		return
	}
	logger.Debug("ingest notification published", zap.String("message_id", id))
}
