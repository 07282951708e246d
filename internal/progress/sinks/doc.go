// Package sinks implements concrete progress consumers: structured logging,
// Prometheus collectors, and job-run persistence. Each sink satisfies the
// progress.Sink interface.
package sinks
