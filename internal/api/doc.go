// Package api hosts the HTTP server, middleware, and REST handlers. Notable
// routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/ask to retrieve grounded context for a question.
//   - POST /v1/ingest to run one acquisition and swap in its snapshot.
//   - GET /v1/snapshot for the summary of the latest acquisition.
package api
