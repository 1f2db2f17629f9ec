package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mynameiseileen/nestle-chatbot/internal/metrics"
	"github.com/mynameiseileen/nestle-chatbot/internal/pipeline"
	"github.com/mynameiseileen/nestle-chatbot/internal/policy/ratelimit"
	"github.com/mynameiseileen/nestle-chatbot/internal/retrieval"
)

// Defaults applied when Config leaves a timeout empty.
const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultIngestTimeout  = 30 * time.Minute
)

// maxBodyBytes bounds request payloads.
const maxBodyBytes = 1 << 16

// genericError is the only failure text production clients see.
const genericError = "please try again later"

// Errors returned by RunIngest.
var (
	ErrIngestRunning = errors.New("an ingestion is already running")
	ErrNoIngester    = errors.New("ingestion is not configured")
)

// Retriever answers questions with a fused retrieval bundle.
type Retriever interface {
	Retrieve(ctx context.Context, question string) retrieval.Bundle
}

// Ingester runs one full acquisition.
type Ingester interface {
	IngestFullSite(ctx context.Context) (*pipeline.Snapshot, error)
}

// Config tunes the HTTP surface.
type Config struct {
	// Production hides internal error detail from responses.
	Production     bool
	RequestTimeout time.Duration
	IngestTimeout  time.Duration
	// APIKey, when set, is required on every /v1 request.
	APIKey  string
	Limiter *ratelimit.Limiter
}

// Server wires HTTP handlers to the retrieval orchestrator and the pipeline.
type Server struct {
	router    chi.Router
	retriever Retriever
	ingester  Ingester
	cfg       Config
	logger    *zap.Logger
	validate  *validator.Validate

	snapshot  atomic.Pointer[pipeline.Snapshot]
	ingesting atomic.Bool
}

// NewServer constructs a Server with middleware and routes. ingester may be
// nil, in which case POST /v1/ingest answers 503.
func NewServer(retriever Retriever, ingester Ingester, cfg Config, logger *zap.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.IngestTimeout <= 0 {
		cfg.IngestTimeout = DefaultIngestTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		retriever: retriever,
		ingester:  ingester,
		cfg:       cfg,
		logger:    logger.Named("api"),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.APIKey != "" {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(cfg.RequestTimeout))
			r.With(rateLimitMiddleware(cfg.Limiter)).Post("/ask", s.ask)
			r.Get("/snapshot", s.getSnapshot)
		})
		r.Post("/ingest", s.ingest)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Snapshot returns the latest acquisition result, or nil before the first.
func (s *Server) Snapshot() *pipeline.Snapshot {
	return s.snapshot.Load()
}

// SetSnapshot replaces the latest acquisition result.
func (s *Server) SetSnapshot(snap *pipeline.Snapshot) {
	s.snapshot.Store(snap)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ready", "ingesting": s.ingesting.Load()}
	if snap := s.snapshot.Load(); snap != nil {
		body["snapshot"] = snap.Version
	}
	s.writeJSON(w, http.StatusOK, body)
}

type askRequest struct {
	Question string `json:"question" validate:"required,max=1000"`
}

type askResponse struct {
	Question  string               `json:"question"`
	Context   string               `json:"context"`
	Snippets  []retrieval.Snippet  `json:"snippets"`
	Relations []retrieval.Relation `json:"relations"`
	Sources   []string             `json:"sources"`
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, "question is required and must be at most 1000 characters", err)
		return
	}

	bundle := s.retriever.Retrieve(r.Context(), req.Question)
	if err := r.Context().Err(); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, genericError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, askResponse{
		Question:  bundle.Question,
		Context:   bundle.Context(),
		Snippets:  bundle.Snippets,
		Relations: bundle.Relations,
		Sources:   bundle.Sources(),
	})
}

type snapshotResponse struct {
	Version    string           `json:"version"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Items      int              `json:"items"`
	Summary    pipeline.Summary `json:"summary"`
}

func newSnapshotResponse(snap *pipeline.Snapshot) snapshotResponse {
	return snapshotResponse{
		Version:    snap.Version,
		StartedAt:  snap.StartedAt,
		FinishedAt: snap.FinishedAt,
		Items:      snap.ItemCount(),
		Summary:    snap.Summary,
	}
}

func (s *Server) getSnapshot(w http.ResponseWriter, _ *http.Request) {
	snap := s.snapshot.Load()
	if snap == nil {
		s.writeError(w, http.StatusNotFound, "no snapshot yet", nil)
		return
	}
	s.writeJSON(w, http.StatusOK, newSnapshotResponse(snap))
}

// RunIngest runs one acquisition and publishes its snapshot. At most one
// run is in flight per Server, whether started here or by POST /v1/ingest;
// a concurrent call fails with ErrIngestRunning.
func (s *Server) RunIngest(ctx context.Context) (*pipeline.Snapshot, error) {
	if s.ingester == nil {
		return nil, ErrNoIngester
	}
	if !s.ingesting.CompareAndSwap(false, true) {
		return nil, ErrIngestRunning
	}
	defer s.ingesting.Store(false)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.IngestTimeout)
	defer cancel()

	snap, err := s.ingester.IngestFullSite(ctx)
	if err != nil {
		s.logger.Error("ingestion failed", zap.Error(err))
		return nil, err
	}
	s.snapshot.Store(snap)
	return snap, nil
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request) {
	snap, err := s.RunIngest(r.Context())
	switch {
	case errors.Is(err, ErrIngestRunning):
		s.writeError(w, http.StatusConflict, ErrIngestRunning.Error(), nil)
	case err != nil:
		s.writeError(w, http.StatusServiceUnavailable, genericError, err)
	default:
		s.writeJSON(w, http.StatusOK, newSnapshotResponse(snap))
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

// writeError sends msg, adding err as detail outside production.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string, err error) {
	body := map[string]string{"error": msg}
	if err != nil && !s.cfg.Production {
		body["detail"] = err.Error()
	}
	s.writeJSON(w, status, body)
}
