// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for liveness and store readiness.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/stats for queue counts and the newest contact batches.
//   - GET /v1/contacts/pending?limit= for a read-only preview of the send queue.
package api
