package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/mynameiseileen/nestle-chatbot/internal/content"
)

// Renderer loads a URL and returns its final DOM. When waitSelector is set
// the renderer additionally waits, bounded, for it to become visible.
type Renderer interface {
	Render(ctx context.Context, url string, waitSelector string) (RenderedPage, error)
	Close() error
}

// RenderedPage is the DOM snapshot returned by a Renderer.
type RenderedPage struct {
	URL        string
	HTML       string
	StatusCode int
	// Partial is set when the selector wait timed out.
	Partial bool
}

// Page is the extraction result of one URL.
type Page struct {
	URL     string
	Items   []content.Item
	Links   []string
	Partial bool
}

const textSelector = "h1, h2, h3, h4, p, li, span, img[src], a[href]"

// Extractor renders pages and turns their DOM into content items.
type Extractor struct {
	renderer       Renderer
	detailPattern  *regexp.Regexp
	detailSelector string
	logger         *zap.Logger
}

// NewExtractor builds an Extractor over renderer.
func NewExtractor(renderer Renderer, cfg Config, logger *zap.Logger) (*Extractor, error) {
	if renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	detail, err := regexp.Compile(cfg.DetailPattern)
	if err != nil {
		return nil, fmt.Errorf("compile detail pattern: %w", err)
	}
	return &Extractor{
		renderer:       renderer,
		detailPattern:  detail,
		detailSelector: cfg.DetailSelector,
		logger:         logger.Named("extractor"),
	}, nil
}

// Extract renders pageURL and parses its content. Navigation failures and
// HTTP error statuses are returned as *content.FetchError; a renderer that
// cannot run at all yields its *content.FatalInitError unchanged.
func (e *Extractor) Extract(ctx context.Context, pageURL string) (Page, error) {
	waitSelector := ""
	if e.detailPattern.MatchString(pageURL) {
		waitSelector = e.detailSelector
	}
	rendered, err := e.renderer.Render(ctx, pageURL, waitSelector)
	if err != nil {
		var fatal *content.FatalInitError
		if errors.As(err, &fatal) {
			return Page{URL: pageURL}, err
		}
		return Page{URL: pageURL}, &content.FetchError{URL: pageURL, Cause: err}
	}
	if rendered.StatusCode >= http.StatusBadRequest {
		return Page{URL: pageURL}, &content.FetchError{
			URL:   pageURL,
			Cause: fmt.Errorf("http status %d", rendered.StatusCode),
		}
	}
	if rendered.Partial {
		e.logger.Warn("detail content did not appear in time, using partial page",
			zap.String("url", pageURL),
			zap.String("selector", waitSelector),
		)
	}
	page, err := ParseHTML(pageURL, rendered.HTML)
	if err != nil {
		return Page{URL: pageURL}, &content.FetchError{URL: pageURL, Cause: err}
	}
	page.Partial = rendered.Partial
	return page, nil
}

// ParseHTML extracts typed items and outbound http(s) links from html in
// document order. Items are attributed to pageURL and relative references are
// resolved against it.
func ParseHTML(pageURL, html string) (Page, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return Page{}, fmt.Errorf("parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Page{}, fmt.Errorf("parse html: %w", err)
	}

	page := Page{URL: pageURL}
	seenLinks := make(map[string]struct{})
	addText := func(t content.Type, text string) {
		if text == "" || !content.LongEnough(t, text) {
			return
		}
		page.Items = append(page.Items, content.Item{Type: t, Text: text, SourceURL: pageURL})
	}

	doc.Find(textSelector).Each(func(_ int, s *goquery.Selection) {
		tag := goquery.NodeName(s)
		switch tag {
		case "h1", "h2", "h3", "h4":
			t, _ := content.HeadingType(tag)
			addText(t, collapse(s.Text()))
		case "p":
			addText(content.TypeParagraph, collapse(s.Text()))
		case "li":
			addText(content.TypeListItem, collapse(s.Text()))
		case "span":
			if s.ParentsFiltered("p, li, h1, h2, h3, h4, span").Length() > 0 {
				return
			}
			addText(content.TypeParagraph, collapse(s.Text()))
		case "img":
			src, _ := s.Attr("src")
			abs, ok := resolveURL(base, src)
			if !ok {
				return
			}
			alt, _ := s.Attr("alt")
			page.Items = append(page.Items, content.Item{
				Type:      content.TypeImage,
				Text:      collapse(alt),
				SourceURL: pageURL,
				Target:    abs,
			})
		case "a":
			href, _ := s.Attr("href")
			abs, ok := resolveURL(base, href)
			if !ok || !isHTTPURL(abs) {
				return
			}
			label := collapse(s.Text())
			if label == "" {
				label = abs
			}
			page.Items = append(page.Items, content.Item{
				Type:      content.TypeLink,
				Text:      label,
				SourceURL: pageURL,
				Target:    abs,
			})
			if _, dup := seenLinks[abs]; !dup {
				seenLinks[abs] = struct{}{}
				page.Links = append(page.Links, abs)
			}
		}
	})
	return page, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
