package crawler

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Frontier tracks the URLs queued for and already visited by one crawl run.
// It is owned by a single Scheduler and is not safe for concurrent use.
type Frontier struct {
	origin   string
	maxPages int
	excludes []*regexp.Regexp
	social   *socialHosts

	queue   []string
	queued  map[string]struct{}
	visited map[string]struct{}
}

// NewFrontier builds a Frontier admitting only URLs on the origin of cfg.BaseURL.
func NewFrontier(cfg Config) (*Frontier, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base, err := origin(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	excludes, err := compileAll(cfg.ExcludePatterns)
	if err != nil {
		return nil, err
	}
	return &Frontier{
		origin:   base,
		maxPages: cfg.MaxPages,
		excludes: excludes,
		social:   newSocialHosts(cfg.SocialDomains),
		queued:   make(map[string]struct{}),
		visited:  make(map[string]struct{}),
	}, nil
}

// Admit reports whether raw may be visited: it is same-origin, carries no
// fragment, is not a filter page or social link, has not been visited, and
// the page ceiling has not been reached.
func (f *Frontier) Admit(raw string) bool {
	if f.Exhausted() || strings.Contains(raw, "#") {
		return false
	}
	key, err := NormalizeURL(raw)
	if err != nil {
		return false
	}
	u, err := url.Parse(key)
	if err != nil {
		return false
	}
	if f.social.Matches(u.Hostname()) {
		return false
	}
	if u.Scheme+"://"+u.Host != f.origin {
		return false
	}
	for _, re := range f.excludes {
		if re.MatchString(raw) || re.MatchString(key) {
			return false
		}
	}
	_, seen := f.visited[key]
	return !seen
}

// Enqueue appends raw to the queue unless it is already queued or visited.
func (f *Frontier) Enqueue(raw string) {
	key, err := NormalizeURL(raw)
	if err != nil {
		return
	}
	if _, ok := f.queued[key]; ok {
		return
	}
	if _, ok := f.visited[key]; ok {
		return
	}
	f.queued[key] = struct{}{}
	f.queue = append(f.queue, key)
}

// Dequeue pops the oldest queued URL.
func (f *Frontier) Dequeue() (string, bool) {
	if len(f.queue) == 0 {
		return "", false
	}
	next := f.queue[0]
	f.queue[0] = ""
	f.queue = f.queue[1:]
	delete(f.queued, next)
	return next, true
}

// MarkVisited records raw as visited. Visiting past the ceiling is an error.
func (f *Frontier) MarkVisited(raw string) error {
	key, err := NormalizeURL(raw)
	if err != nil {
		return err
	}
	if _, ok := f.visited[key]; ok {
		return nil
	}
	if f.Exhausted() {
		return fmt.Errorf("page ceiling of %d reached", f.maxPages)
	}
	f.visited[key] = struct{}{}
	return nil
}

// VisitedCount returns the number of visited URLs.
func (f *Frontier) VisitedCount() int {
	return len(f.visited)
}

// Pending returns the number of queued URLs.
func (f *Frontier) Pending() int {
	return len(f.queue)
}

// Exhausted reports whether the page ceiling has been reached.
func (f *Frontier) Exhausted() bool {
	return len(f.visited) >= f.maxPages
}
