package pipeline

import (
	"time"

	"github.com/mynameiseileen/nestle-chatbot/internal/content"
	"github.com/mynameiseileen/nestle-chatbot/internal/crawler"
	"github.com/mynameiseileen/nestle-chatbot/internal/graph"
	"github.com/mynameiseileen/nestle-chatbot/internal/index"
)

// Snapshot is the immutable result of one acquisition run. Callers hold the
// latest one instead of a process-wide cache.
type Snapshot struct {
	Version    string               `json:"version"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	Content    []content.Normalized `json:"content"`
	Summary    Summary              `json:"summary"`
}

// ItemCount is the number of normalized items the run produced.
func (s *Snapshot) ItemCount() int {
	if s == nil {
		return 0
	}
	return len(s.Content)
}

// Summary aggregates the per-stage reports of a run.
type Summary struct {
	InitAttempts int                 `json:"init_attempts"`
	Crawl        crawler.Stats       `json:"crawl"`
	Graph        graph.IngestReport  `json:"graph"`
	GraphError   string              `json:"graph_error,omitempty"`
	Index        index.PublishReport `json:"index"`
	IndexError   string              `json:"index_error,omitempty"`
	ArchiveURI   string              `json:"archive_uri,omitempty"`
}

// Notification is the payload announcing a finished run.
type Notification struct {
	Version    string    `json:"version"`
	Items      int       `json:"items"`
	FinishedAt time.Time `json:"finished_at"`
	Summary    Summary   `json:"summary"`
}
