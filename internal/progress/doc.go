// Package progress reports enrichment progress without slowing the lookups.
// Emitters hand events to a Hub, which batches them on a background goroutine
// and fans them out to sinks such as structured logs, Prometheus collectors,
// or the in-memory snapshot served by the status endpoint.
package progress
