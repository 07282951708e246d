// Package api hosts the admin HTTP server for the thread pool. Routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/pool for a snapshot of worker and queue state.
//   - GET /v1/jobs and /v1/jobs/{job_id} for job-run history via the
//     store.JobRunRepository interface.
package api
