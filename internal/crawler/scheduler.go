package crawler

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/mynameiseileen/nestle-chatbot/internal/content"
	"github.com/mynameiseileen/nestle-chatbot/internal/metrics"
	"github.com/mynameiseileen/nestle-chatbot/internal/policy/ratelimit"
)

// Stats summarizes one crawl run.
type Stats struct {
	PagesVisited   int           `json:"pages_visited"`
	PagesFailed    int           `json:"pages_failed"`
	PagesPartial   int           `json:"pages_partial"`
	ItemsExtracted int           `json:"items_extracted"`
	Duration       time.Duration `json:"duration"`
}

// Result is the outcome of a crawl run.
type Result struct {
	// Items holds every extracted item in visit order.
	Items []content.Item
	// Content is Items after normalization.
	Content []content.Normalized
	Stats   Stats
}

// Scheduler drives the frontier with the extractor, one page at a time.
type Scheduler struct {
	cfg       Config
	extractor *Extractor
	priority  *regexp.Regexp
	pacer     pacer
	logger    *zap.Logger
}

// NewScheduler wires a Scheduler. The renderer is owned by the caller and
// must not be driven by anything else while Run executes.
func NewScheduler(cfg Config, renderer Renderer, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	extractor, err := NewExtractor(renderer, cfg, logger)
	if err != nil {
		return nil, err
	}
	priority, err := regexp.Compile(cfg.PriorityPattern)
	if err != nil {
		return nil, fmt.Errorf("compile priority pattern: %w", err)
	}
	return &Scheduler{
		cfg:       cfg,
		extractor: extractor,
		priority:  priority,
		pacer:     ratelimit.NewPacer(cfg.Delay),
		logger:    logger.Named("scheduler"),
	}, nil
}

// Run crawls from the base URL until the queue empties or the page ceiling
// is reached. Page failures are counted and skipped. Only a renderer that
// cannot run at all, or cancellation of ctx, ends the run with an error; the
// items gathered so far are returned alongside it.
func (s *Scheduler) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	frontier, err := NewFrontier(s.cfg)
	if err != nil {
		return Result{}, err
	}
	frontier.Enqueue(s.cfg.BaseURL)

	var result Result
	finish := func(runErr error) (Result, error) {
		result.Content = content.Normalize(result.Items)
		result.Stats.Duration = time.Since(start)
		s.logger.Info("crawl finished",
			zap.Int("pages_visited", result.Stats.PagesVisited),
			zap.Int("pages_failed", result.Stats.PagesFailed),
			zap.Int("items_extracted", result.Stats.ItemsExtracted),
			zap.Int("content", len(result.Content)),
			zap.Duration("duration", result.Stats.Duration),
		)
		return result, runErr
	}

	for !frontier.Exhausted() {
		if err := ctx.Err(); err != nil {
			return finish(fmt.Errorf("crawl canceled: %w", err))
		}
		next, ok := frontier.Dequeue()
		if !ok {
			break
		}
		if !frontier.Admit(next) {
			continue
		}
		if err := s.pacer.Wait(ctx); err != nil {
			return finish(fmt.Errorf("crawl canceled: %w", err))
		}
		if err := frontier.MarkVisited(next); err != nil {
			break
		}
		result.Stats.PagesVisited++

		page, err := s.extractor.Extract(ctx, next)
		if err != nil {
			var fatal *content.FatalInitError
			if errors.As(err, &fatal) {
				metrics.ObservePage(next, metrics.PageStatusFatal, 0)
				return finish(err)
			}
			result.Stats.PagesFailed++
			metrics.ObservePage(next, metrics.PageStatusFailed, 0)
			s.logger.Warn("page extraction failed, continuing",
				zap.String("url", next),
				zap.Error(err),
			)
			continue
		}

		status := metrics.PageStatusOK
		if page.Partial {
			status = metrics.PageStatusPartial
			result.Stats.PagesPartial++
		}
		metrics.ObservePage(next, status, len(page.Items))
		result.Items = append(result.Items, page.Items...)
		result.Stats.ItemsExtracted += len(page.Items)

		for _, link := range prioritize(page.Links, s.priority) {
			if frontier.Admit(link) {
				frontier.Enqueue(link)
			}
		}
		s.logger.Debug("page processed",
			zap.String("url", next),
			zap.Int("items", len(page.Items)),
			zap.Int("links", len(page.Links)),
			zap.Int("queued", frontier.Pending()),
		)
	}
	return finish(nil)
}
