// Package progress provides the lifecycle events the thread pool emits for each
// job, a non-blocking hub that batches them on a background goroutine, and the
// Sink interface used to fan batches out to logs, Prometheus, or Postgres.
package progress
