// Package app initializes and holds long-lived application services, acting
// as the dependency injection container for the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/mynameiseileen/nestle-chatbot/internal/clock/system"
	"github.com/mynameiseileen/nestle-chatbot/internal/config"
	"github.com/mynameiseileen/nestle-chatbot/internal/crawler"
	collyfetcher "github.com/mynameiseileen/nestle-chatbot/internal/fetcher/colly"
	"github.com/mynameiseileen/nestle-chatbot/internal/fetcher/headless"
	"github.com/mynameiseileen/nestle-chatbot/internal/graph"
	graphmemory "github.com/mynameiseileen/nestle-chatbot/internal/graph/memory"
	neo4jgraph "github.com/mynameiseileen/nestle-chatbot/internal/graph/neo4j"
	"github.com/mynameiseileen/nestle-chatbot/internal/id/uuid"
	"github.com/mynameiseileen/nestle-chatbot/internal/index"
	"github.com/mynameiseileen/nestle-chatbot/internal/index/postgres"
	"github.com/mynameiseileen/nestle-chatbot/internal/index/sqlite"
	"github.com/mynameiseileen/nestle-chatbot/internal/pipeline"
	"github.com/mynameiseileen/nestle-chatbot/internal/policy/ratelimit"
	pubmemory "github.com/mynameiseileen/nestle-chatbot/internal/publisher/memory"
	pubsubpublisher "github.com/mynameiseileen/nestle-chatbot/internal/publisher/pubsub"
	"github.com/mynameiseileen/nestle-chatbot/internal/retrieval"
	"github.com/mynameiseileen/nestle-chatbot/internal/retry"
	"github.com/mynameiseileen/nestle-chatbot/internal/storage/gcs"
	"github.com/mynameiseileen/nestle-chatbot/internal/storage/local"
)

// graphBackend is what the app needs from a graph store: the graph.Store
// contract plus shutdown.
type graphBackend interface {
	graph.Store
	Close(ctx context.Context) error
}

// Option customizes App construction.
type Option func(*options)

type options struct {
	renderers pipeline.RendererFactory
	openGraph func(context.Context, config.GraphConfig, *zap.Logger) (graphBackend, error)
	openIndex func(context.Context, config.IndexConfig) (index.Index, error)
	sleep     retry.Sleeper
}

// WithRenderers replaces the renderer factory derived from configuration.
func WithRenderers(f pipeline.RendererFactory) Option {
	return func(o *options) { o.renderers = f }
}

// App holds the shared, long-lived services. It is built once at startup
// and closed when the command finishes.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	graph    graphBackend
	index    index.Index
	notifier pipeline.Notifier

	// Pipeline runs acquisitions.
	Pipeline *pipeline.Pipeline
	// Retriever answers questions from the graph and the index.
	Retriever *retrieval.Orchestrator
	// Limiter throttles /v1/ask per client.
	Limiter *ratelimit.Limiter

	closers []func(context.Context) error
}

// New builds every service named by cfg. Unreachable graph or index stores
// are retried under the pipeline's start-up policy; any other failure is
// returned at once and whatever was already opened is released.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (a *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{openGraph: openGraph, openIndex: openIndex}
	for _, opt := range opts {
		opt(&o)
	}

	a = &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil {
				logger.Warn("cleanup after failed start", zap.Error(cerr))
			}
			a = nil
		}
	}()

	logger.Info("initializing application services",
		zap.String("graph", cfg.Graph.Driver),
		zap.String("index", cfg.Index.Driver),
		zap.String("archive", cfg.Archive.Driver),
		zap.String("notify", cfg.Notify.Driver),
	)

	starter := retry.New(retry.Policy{
		Attempts: cfg.Pipeline.InitAttempts,
		Backoff:  cfg.Pipeline.InitBackoff,
	}, logger)
	if o.sleep != nil {
		starter = starter.WithSleeper(o.sleep)
	}

	if a.graph, _, err = retry.Do(ctx, starter, "connect graph store", func(ctx context.Context) (graphBackend, error) {
		return o.openGraph(ctx, cfg.Graph, logger)
	}); err != nil {
		return a, err
	}
	a.closers = append(a.closers, a.graph.Close)

	if a.index, _, err = retry.Do(ctx, starter, "connect index", func(ctx context.Context) (index.Index, error) {
		return o.openIndex(ctx, cfg.Index)
	}); err != nil {
		return a, err
	}
	a.closers = append(a.closers, func(context.Context) error { return a.index.Close() })

	archive, err := a.openArchive(ctx)
	if err != nil {
		return a, err
	}
	if a.notifier, err = a.openNotifier(ctx); err != nil {
		return a, err
	}

	ids := uuid.New()
	renderers := o.renderers
	if renderers == nil {
		renderers = rendererFactory(cfg.Crawler, logger)
	}

	deps := pipeline.Deps{
		Renderers: renderers,
		Graph: graph.NewIngestor(a.graph, graph.IngestConfig{
			NodeBatchSize:    cfg.Graph.NodeBatchSize,
			EdgeBatchSize:    cfg.Graph.EdgeBatchSize,
			MinHeadingLength: cfg.Graph.MinHeadingLength,
		}, logger),
		Index: index.NewPublisher(a.index, ids, index.PublishConfig{
			MaxTextLength: cfg.Index.MaxTextLength,
			BatchSize:     cfg.Index.BatchSize,
			BatchPause:    cfg.Index.BatchPause,
		}, logger),
		Archive:  archive,
		Notifier: a.notifier,
		Clock:    system.New(),
		IDs:      ids,
	}
	a.Pipeline, err = pipeline.New(pipeline.Config{
		Crawler:       crawlerConfig(cfg.Crawler),
		InitAttempts:  cfg.Pipeline.InitAttempts,
		InitBackoff:   cfg.Pipeline.InitBackoff,
		ArchivePrefix: cfg.Archive.Prefix,
		NotifyTopic:   cfg.Notify.Topic,
	}, deps, logger)
	if err != nil {
		return a, fmt.Errorf("build pipeline: %w", err)
	}

	searcher := graph.NewSearcher(a.graph, nil, graph.SearchConfig{
		Threshold:    cfg.Graph.SimilarityThreshold,
		MaxRelations: cfg.Graph.MaxRelations,
	}, logger)
	a.Retriever = retrieval.New(a.index, searcher, retrieval.Config{
		TopK:           cfg.Index.TopK,
		LexicalTimeout: cfg.Retrieval.LexicalTimeout,
		GraphTimeout:   cfg.Retrieval.GraphTimeout,
	}, logger)

	a.Limiter = ratelimit.New(ratelimit.Config{
		RPS:   cfg.Server.RateLimitRPS,
		Burst: cfg.Server.RateLimitBurst,
	})

	logger.Info("application services initialized")
	return a, nil
}

// Config returns the configuration the app was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Close releases every backend in reverse order of opening. It is safe to
// call more than once.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func openGraph(ctx context.Context, cfg config.GraphConfig, logger *zap.Logger) (graphBackend, error) {
	switch cfg.Driver {
	case "memory":
		return graphmemory.New(), nil
	case "neo4j":
		return neo4jgraph.New(ctx, neo4jgraph.Config{
			URI:      cfg.URI,
			Username: cfg.Username,
			Password: cfg.Password,
			Database: cfg.Database,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown graph driver %q", cfg.Driver)
	}
}

func openIndex(ctx context.Context, cfg config.IndexConfig) (index.Index, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlite.Open(sqlite.Config{DSN: cfg.DSN, Table: cfg.Table, MaxBatch: cfg.MaxBatch})
	case "postgres":
		return postgres.New(ctx, postgres.Config{DSN: cfg.DSN, Table: cfg.Table, MaxBatch: cfg.MaxBatch})
	default:
		return nil, fmt.Errorf("unknown index driver %q", cfg.Driver)
	}
}

func (a *App) openArchive(ctx context.Context) (pipeline.Archive, error) {
	cfg := a.cfg.Archive
	switch cfg.Driver {
	case "none":
		return nil, nil
	case "local":
		store, err := local.New(local.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("open local archive: %w", err)
		}
		return store, nil
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		store, err := gcs.New(ctx, client, gcs.Config{Bucket: cfg.Bucket})
		if err != nil {
			return nil, fmt.Errorf("open gcs archive: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown archive driver %q", cfg.Driver)
	}
}

func (a *App) openNotifier(ctx context.Context) (pipeline.Notifier, error) {
	cfg := a.cfg.Notify
	switch cfg.Driver {
	case "none":
		return nil, nil
	case "memory":
		return pubmemory.New(), nil
	case "pubsub":
		client, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("create pubsub client: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		pub := pubsubpublisher.New(client.Topic(cfg.Topic))
		a.closers = append(a.closers, func(context.Context) error {
			pub.Stop()
			return nil
		})
		return pub, nil
	default:
		return nil, fmt.Errorf("unknown notify driver %q", cfg.Driver)
	}
}

// rendererFactory launches chromedp for client-rendered sites and falls
// back to colly when headless rendering is switched off.
func rendererFactory(cfg config.CrawlerConfig, logger *zap.Logger) pipeline.RendererFactory {
	if !cfg.Headless {
		return func(context.Context) (crawler.Renderer, error) {
			return collyfetcher.New(collyfetcher.Config{
				UserAgent:     cfg.UserAgent,
				RespectRobots: cfg.RespectRobots,
				Timeout:       cfg.NavigationTimeout,
			}), nil
		}
	}
	return func(context.Context) (crawler.Renderer, error) {
		return headless.NewChromedp(headless.Config{
			UserAgent:         cfg.UserAgent,
			NavigationTimeout: cfg.NavigationTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			SelectorTimeout:   cfg.SelectorTimeout,
			ExecPath:          cfg.ChromePath,
		}, logger)
	}
}

func crawlerConfig(cfg config.CrawlerConfig) crawler.Config {
	return crawler.Config{
		BaseURL:         cfg.BaseURL,
		MaxPages:        cfg.MaxPages,
		Delay:           cfg.Delay,
		DetailPattern:   cfg.DetailPattern,
		DetailSelector:  cfg.DetailSelector,
		PriorityPattern: cfg.PriorityPattern,
		ExcludePatterns: cfg.ExcludePatterns,
		SocialDomains:   cfg.SocialDomains,
	}
}
