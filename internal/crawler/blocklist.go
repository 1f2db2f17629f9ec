package crawler

import (
	"slices"
	"strings"
)

// socialHosts matches link hosts against configured social domains. An entry
// "facebook.com" or "*.facebook.com" covers the domain and every subdomain.
type socialHosts struct {
	domains []string
}

func newSocialHosts(patterns []string) *socialHosts {
	var domains []string
	for _, raw := range patterns {
		d := strings.ToLower(strings.TrimSpace(raw))
		d = strings.TrimPrefix(strings.TrimPrefix(d, "*"), ".")
		if d == "" || slices.Contains(domains, d) {
			continue
		}
		domains = append(domains, d)
	}
	if len(domains) == 0 {
		return nil
	}
	return &socialHosts{domains: domains}
}

// Matches reports whether host is one of the social domains or below one.
func (s *socialHosts) Matches(host string) bool {
	if s == nil {
		return false
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return false
	}
	return slices.ContainsFunc(s.domains, func(d string) bool {
		return host == d || strings.HasSuffix(host, "."+d)
	})
}
