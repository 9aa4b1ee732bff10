// Package main hosts the enricher entrypoint.
//
// Architecture overview:
//   - Catalog: internal/catalog loads a JSON document whose item list sits under a configurable key
//     (wines, beers) and carries every other top-level key through untouched. Worker artifacts add a
//     _partition block so merge can stitch them back in order.
//   - Partitioning: each worker process owns the half-open range [id*N/W, (id+1)*N/W) of the list, or an
//     explicit --start/--end range. Workers share nothing and write items_worker_<id>.json.
//   - Sessions: the range is cut into chunks; every chunk gets a fresh browser session (chromedp) or a
//     fresh cookie jar (colly) with a randomly drawn user agent and viewport. Sites that price by
//     shipping destination negotiate the locale once per session.
//   - Lookup: items in a chunk run under a small concurrency limit. Each lookup navigates to the site's
//     search page with bounded exponential retry, extracts the first rating and link, and falls back to a
//     year-stripped term. Humanized pacing windows separate items, chunks and long breaks.
//   - Output: the enriched slice is written to local disk or GCS even when the run is interrupted.
//     Per-item results optionally land in Postgres; completion is optionally announced on Pub/Sub.
//
// Operational notes:
//   - Configuration comes from a YAML/TOML/JSON file, ENRICHER_* environment variables and flags, in
//     rising priority.
//   - --port exposes /healthz, /readyz, /metrics and /progress while a worker runs.
//   - SIGINT/SIGTERM cancel outstanding lookups; the partial artifact is still written.
//
// Quick checklist:
//   - Single run: enricher enrich --catalog items.json --site vivino
//   - Four workers: enricher enrich --worker-id 0..3 --total-workers 4, then
//     enricher merge --out items.json items_worker_*.json
//   - Build a catalog from scraped tiles: enricher import raw.json items.json
package main
