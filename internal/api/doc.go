// Package api hosts the operator HTTP endpoint that runs alongside a crawl.
// Routes:
//   - GET /healthz and /readyz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/backlog reports pending targets.
//   - POST /v1/backlog appends URLs while the crawl is draining.
package api
