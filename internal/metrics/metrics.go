// Package metrics exposes Prometheus collectors for the crawl, ingestion and
// retrieval pipeline.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Page statuses recorded by ObservePage.
const (
	PageStatusOK      = "ok"
	PageStatusPartial = "partial"
	PageStatusFailed  = "failed"
	PageStatusFatal   = "fatal"
)

// Batch outcomes recorded by ObserveBatch.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	crawlerPagesTotal          *prometheus.CounterVec
	crawlerItemsTotal          *prometheus.CounterVec
	batchesTotal               *prometheus.CounterVec
	retrievalDurationSeconds   *prometheus.HistogramVec
	retrievalResultsTotal      *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitRejectionsTotal   *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of pages crawled, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		crawlerItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_items_total",
				Help: "Total number of content items extracted, labeled by site.",
			},
			[]string{"site"},
		)

		batchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_batches_total",
				Help: "Total number of write batches, labeled by target, phase and outcome.",
			},
			[]string{"target", "phase", "outcome"},
		)

		retrievalDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "retrieval_duration_seconds",
				Help:    "Histogram of retrieval source latencies, labeled by source.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"source"},
		)

		retrievalResultsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retrieval_queries_total",
				Help: "Total number of retrieval source queries, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		rateLimitRejectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_rate_limited_total",
				Help: "Total number of requests rejected by the per-client rate limiter, labeled by route.",
			},
			[]string{"route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObservePage records one crawled page and the items extracted from it.
func ObservePage(pageURL string, status string, items int) {
	Init()
	site := SanitizeSite(pageURL)
	crawlerPagesTotal.WithLabelValues(site, status).Inc()
	if items > 0 {
		crawlerItemsTotal.WithLabelValues(site).Add(float64(items))
	}
}

// ObserveBatch records a graph or index write batch.
func ObserveBatch(target, phase, outcome string) {
	Init()
	batchesTotal.WithLabelValues(target, phase, outcome).Inc()
}

// ObserveRetrieval records the latency and outcome of one retrieval source.
func ObserveRetrieval(source string, err error, duration time.Duration) {
	Init()
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	retrievalResultsTotal.WithLabelValues(source, outcome).Inc()
	retrievalDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimited records a request rejected by the rate limiter.
func ObserveRateLimited(route string) {
	Init()
	rateLimitRejectionsTotal.WithLabelValues(route).Inc()
}
