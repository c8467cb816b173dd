// Package api hosts the HTTP hook receiver. A bundler plugin that cannot call
// the tracker in-process posts its lifecycle hooks here. Notable routes:
//   - POST /v1/hooks accepts one hook or a JSON array of hooks.
//   - GET /v1/progress reports the current or last build's estimate.
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
package api
