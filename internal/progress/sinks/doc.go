// Package sinks implements progress consumers: structured logging,
// Prometheus collectors, and an in-memory snapshot for the status endpoint.
// Each sink satisfies progress.Sink.
package sinks
