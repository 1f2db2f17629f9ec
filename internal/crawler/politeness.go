package crawler

import (
	"context"
	"regexp"
)

// pacer gates each navigation so consecutive pages start at least
// Config.Delay apart.
type pacer interface {
	Wait(ctx context.Context) error
}

// prioritize moves links matching pattern ahead of the rest, keeping the
// original relative order inside both groups.
func prioritize(links []string, pattern *regexp.Regexp) []string {
	if pattern == nil || len(links) < 2 {
		return links
	}
	out := make([]string, 0, len(links))
	var rest []string
	for _, link := range links {
		if pattern.MatchString(link) {
			out = append(out, link)
		} else {
			rest = append(rest, link)
		}
	}
	return append(out, rest...)
}
