// Package headless renders client-side pages with a single headless Chrome tab.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/mynameiseileen/nestle-chatbot/internal/content"
	"github.com/mynameiseileen/nestle-chatbot/internal/crawler"
)

// Default timeouts applied when Config leaves them empty.
const (
	DefaultNavigationTimeout = 30 * time.Second
	DefaultIdleTimeout       = 10 * time.Second
	DefaultSelectorTimeout   = 10 * time.Second
)

// Config controls the behavior of the headless renderer.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	IdleTimeout       time.Duration
	SelectorTimeout   time.Duration
	// ExecPath overrides the Chrome binary lookup.
	ExecPath string
}

func (c Config) withDefaults() Config {
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = DefaultNavigationTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.SelectorTimeout <= 0 {
		c.SelectorTimeout = DefaultSelectorTimeout
	}
	return c
}

// Renderer implements crawler.Renderer on one long-lived browser tab. Calls
// are serialized; the tab is never driven by two navigations at once.
type Renderer struct {
	cfg           Config
	logger        *zap.Logger
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu   sync.Mutex
	meta *responseMeta
	idle chan struct{}
}

// NewChromedp launches headless Chrome and prepares its tab. A browser that
// cannot be started is reported as *content.FatalInitError.
func NewChromedp(cfg Config, logger *zap.Logger) (*Renderer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	r := &Renderer{
		cfg:           cfg,
		logger:        logger.Named("headless"),
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		meta:          newResponseMeta(),
		idle:          make(chan struct{}, 1),
	}
	chromedp.ListenTarget(browserCtx, r.handleEvent)

	if err := chromedp.Run(browserCtx, r.setupAction()); err != nil {
		browserCancel()
		allocCancel()
		return nil, &content.FatalInitError{Component: "headless browser", Cause: err}
	}
	return r, nil
}

// Close shuts the tab and the browser process down.
func (r *Renderer) Close() error {
	if r == nil {
		return nil
	}
	r.browserCancel()
	r.allocCancel()
	return nil
}

// Render navigates to url, waits for network idle and, when waitSelector is
// set, for that selector to become visible. Idle and selector waits that time
// out do not fail the render; a selector timeout marks the page partial.
func (r *Renderer) Render(ctx context.Context, url string, waitSelector string) (crawler.RenderedPage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.browserCtx.Err(); err != nil {
		return crawler.RenderedPage{}, &content.FatalInitError{Component: "headless browser", Cause: err}
	}

	navCtx, cancel := context.WithTimeout(r.browserCtx, r.cfg.NavigationTimeout)
	defer cancel()
	stopForward := forwardCancel(ctx, cancel)
	defer stopForward()

	r.meta.reset()
	drain(r.idle)

	var finalURL string
	if err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		r.waitNetworkIdle(),
		chromedp.Location(&finalURL),
	); err != nil {
		return crawler.RenderedPage{}, fmt.Errorf("navigate %s: %w", url, err)
	}

	partial := false
	if waitSelector != "" {
		if err := r.waitVisible(navCtx, waitSelector); err != nil {
			if navCtx.Err() != nil {
				return crawler.RenderedPage{}, fmt.Errorf("wait for %q: %w", waitSelector, err)
			}
			partial = true
			r.logger.Debug("selector wait timed out",
				zap.String("url", url),
				zap.String("selector", waitSelector),
				zap.Error(err),
			)
		}
	}

	var html string
	if err := chromedp.Run(navCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return crawler.RenderedPage{}, fmt.Errorf("read dom %s: %w", url, err)
	}

	status, responseURL := r.meta.snapshotWithFallbacks(url, finalURL)
	return crawler.RenderedPage{
		URL:        responseURL,
		HTML:       html,
		StatusCode: status,
		Partial:    partial,
	}, nil
}

func (r *Renderer) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := page.SetLifecycleEventsEnabled(true).Do(ctx); err != nil {
			return fmt.Errorf("enable lifecycle events: %w", err)
		}
		if r.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(r.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (r *Renderer) handleEvent(ev any) {
	switch e := ev.(type) {
	case *network.EventResponseReceived:
		r.meta.capture(e)
	case *page.EventLifecycleEvent:
		if e.Name == "networkIdle" {
			signal(r.idle)
		}
	}
}

// waitNetworkIdle blocks until the tab reports network idle or the idle
// budget runs out, whichever comes first.
func (r *Renderer) waitNetworkIdle() chromedp.Action {
	return waitIdle(r.idle, r.cfg.IdleTimeout, r.logger)
}

func waitIdle(idle <-chan struct{}, budget time.Duration, logger *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		timer := time.NewTimer(budget)
		defer timer.Stop()
		select {
		case <-idle:
		case <-timer.C:
			logger.Debug("network idle not reached, continuing", zap.Duration("budget", budget))
		case <-ctx.Done():
			return fmt.Errorf("wait network idle: %w", ctx.Err())
		}
		return nil
	})
}

func (r *Renderer) waitVisible(parent context.Context, selector string) error {
	selCtx, cancel := context.WithTimeout(parent, r.cfg.SelectorTimeout)
	defer cancel()
	if err := chromedp.Run(selCtx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait visible: %w", err)
	}
	return nil
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	stop := context.AfterFunc(parent, cancel)
	return func() { stop() }
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func drain(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) reset() {
	m.mu.Lock()
	m.status = 0
	m.url = ""
	m.mu.Unlock()
}

// capture keeps the first document response of a navigation.
func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != 0 {
		return
	}
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, string) {
	m.mu.RLock()
	status, url := m.status, m.url
	m.mu.RUnlock()
	switch {
	case finalURL != "" && finalURL != "about:blank":
		url = finalURL
	case url != "":
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}

var _ crawler.Renderer = (*Renderer)(nil)
