// Package collyfetcher implements a static crawler.Renderer using gocolly.
// It serves sites whose content is present in the server-rendered HTML.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/mynameiseileen/nestle-chatbot/internal/crawler"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// Fetcher implements crawler.Renderer with a plain HTTP GET. The wait
// selector is ignored because no script runs.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	robots        *robotsTransport
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	robots := newRobotsTransport(newHTTPTransport())
	c.WithTransport(robots)
	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		robots:        robots,
	}
}

// RobotsFallbacks counts robots.txt fetches answered with allow-all after
// repeated TLS handshake timeouts.
func (f *Fetcher) RobotsFallbacks() int64 {
	return f.robots.fallbacks.Load()
}

// Render fetches url and returns the response body as the page DOM.
func (f *Fetcher) Render(ctx context.Context, url string, _ string) (crawler.RenderedPage, error) {
	var (
		result   crawler.RenderedPage
		fetchErr error
	)
	collector := f.buildCollector(&result, &fetchErr)
	if err := f.runCollector(ctx, collector, url, &fetchErr); err != nil {
		return crawler.RenderedPage{}, err
	}
	return result, nil
}

// Close is a no-op; the collector holds no long-lived resources.
func (f *Fetcher) Close() error {
	return nil
}

func (f *Fetcher) buildCollector(result *crawler.RenderedPage, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	collector.AllowURLRevisit = true
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	f.configureCollectorHooks(collector, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *crawler.RenderedPage, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*result = crawler.RenderedPage{
			URL:        r.Request.URL.String(),
			HTML:       string(r.Body),
			StatusCode: r.StatusCode,
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

var _ crawler.Renderer = (*Fetcher)(nil)
