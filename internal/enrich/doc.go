// Package enrich drives rating lookups for a catalog slice.
//
// A run partitions the catalog across workers, splits the worker's slice
// into chunks, opens one fresh browser session per chunk, and resolves the
// chunk's items under a bounded pool. Each item lookup is retried with
// exponential backoff and, when the primary term yields nothing, repeated
// once with an alternate term. Item failures never abort siblings.
package enrich
