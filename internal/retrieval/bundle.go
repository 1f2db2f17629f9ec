package retrieval

import (
	"fmt"
	"strings"

	"github.com/mynameiseileen/nestle-chatbot/internal/graph"
)

// Snippet is one lexical hit attributed to its page.
type Snippet struct {
	Text      string `json:"text"`
	URL       string `json:"url"`
	Highlight string `json:"highlight,omitempty"`
}

// Relation is a graph relation attributed to both endpoint pages.
type Relation = graph.Relation

// Bundle is the fused per-request retrieval result. Snippets always precede
// relations and keep their source order.
type Bundle struct {
	Question  string     `json:"question"`
	Snippets  []Snippet  `json:"snippets"`
	Relations []Relation `json:"relations"`
}

// Empty reports whether neither source contributed anything.
func (b Bundle) Empty() bool {
	return len(b.Snippets) == 0 && len(b.Relations) == 0
}

// Sources lists the distinct URLs cited by the bundle in order of first use.
func (b Bundle) Sources() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(u string) {
		if _, ok := seen[u]; ok || u == "" {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	for _, s := range b.Snippets {
		add(s.URL)
	}
	for _, r := range b.Relations {
		add(r.SourceURL)
		add(r.TargetURL)
	}
	return out
}

// Context renders the bundle as the source-attributed text handed to the
// language model. Every line names the URL it came from.
func (b Bundle) Context() string {
	var sb strings.Builder
	if len(b.Snippets) > 0 {
		sb.WriteString("Search results:\n")
		for n, s := range b.Snippets {
			fmt.Fprintf(&sb, "%d. %s (source: %s)\n", n+1, s.Text, s.URL)
		}
	}
	if len(b.Relations) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("Related content:\n")
		for _, r := range b.Relations {
			fmt.Fprintf(&sb, "- %q %s %q (confidence %.2f; sources: %s, %s)\n",
				r.Source, r.Relationship, r.Target, r.Confidence, r.SourceURL, r.TargetURL)
		}
	}
	return sb.String()
}
