package crawler

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Default crawl knobs used when Config leaves a field empty.
const (
	DefaultMaxPages        = 50
	DefaultDelay           = 2 * time.Second
	DefaultDetailPattern   = `/recipe/`
	DefaultDetailSelector  = "h1"
	DefaultPriorityPattern = `/recipe/`
)

// DefaultExcludePatterns reject listing pages that only re-filter content.
var DefaultExcludePatterns = []string{
	`/recipes?/?\?`,
	`[?&](filter|sort|page|f%5B[^=]*%5D|f\[[^=]*\])=`,
	`/search(/|\?|$)`,
}

// DefaultSocialDomains are third-party hosts never worth following.
var DefaultSocialDomains = []string{
	"*.facebook.com",
	"*.instagram.com",
	"*.twitter.com",
	"x.com",
	"*.youtube.com",
	"*.pinterest.com",
	"*.tiktok.com",
	"*.linkedin.com",
}

// Config captures the knobs of a single crawl run.
type Config struct {
	BaseURL         string
	MaxPages        int
	// Delay is the minimum spacing between page navigations. Negative
	// disables pacing.
	Delay           time.Duration
	DetailPattern   string
	DetailSelector  string
	PriorityPattern string
	ExcludePatterns []string
	SocialDomains   []string
}

// withDefaults fills empty fields. A negative delay disables pacing.
func (c Config) withDefaults() Config {
	if c.MaxPages <= 0 {
		c.MaxPages = DefaultMaxPages
	}
	if c.Delay == 0 {
		c.Delay = DefaultDelay
	}
	if c.DetailPattern == "" {
		c.DetailPattern = DefaultDetailPattern
	}
	if c.DetailSelector == "" {
		c.DetailSelector = DefaultDetailSelector
	}
	if c.PriorityPattern == "" {
		c.PriorityPattern = DefaultPriorityPattern
	}
	if c.ExcludePatterns == nil {
		c.ExcludePatterns = DefaultExcludePatterns
	}
	if c.SocialDomains == nil {
		c.SocialDomains = DefaultSocialDomains
	}
	return c
}

// Validate checks for obviously bad configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("crawler base url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base url must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("base url must include a host")
	}
	for _, p := range []string{c.DetailPattern, c.PriorityPattern} {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("compile pattern %q: %w", p, err)
		}
	}
	for _, p := range c.ExcludePatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("compile exclude pattern %q: %w", p, err)
		}
	}
	return nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}
