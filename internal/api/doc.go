// Package api hosts the operator HTTP server started by the schedule command.
// Routes:
//   - GET /healthz and /readyz for liveness and database readiness.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs to start a run now; GET /v1/runs/last for the latest result.
package api
