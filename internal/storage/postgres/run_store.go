package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JakeFAU/rating-enricher/internal/enrich"
)

// DefaultRunsTable receives one row per finished worker.
const DefaultRunsTable = "enrichment_runs"

// ErrRunNotFound is returned when no worker of a run has reported.
var ErrRunNotFound = errors.New("run not found")

type queryExecer interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
}

// WorkerRun is the completion row written by one worker.
type WorkerRun struct {
	RunID         string
	WorkerID      int
	TotalWorkers  int
	Start         int
	End           int
	Items         int
	Resolved      int
	Unresolved    int
	SkippedChunks int
	Artifact      string
	FinishedAt    time.Time
}

// RunStore records worker completions so a merger can find every artifact of
// a run. It implements enrich.Notifier.
type RunStore struct {
	pool  queryExecer
	table string
	now   func() time.Time
}

var _ enrich.Notifier = (*RunStore)(nil)

// NewRunStore shares the pool of an existing RatingStore when possible.
func NewRunStore(pool queryExecer, table string) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = DefaultRunsTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RunStore{pool: pool, table: table, now: time.Now}, nil
}

// Pool exposes the rating store's pool for a RunStore sharing the same connections.
func (s *RatingStore) Pool() (queryExecer, bool) {
	q, ok := s.pool.(queryExecer)
	return q, ok
}

// EnsureSchema creates the runs table when it does not exist.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id         uuid NOT NULL,
	worker_id      integer NOT NULL,
	total_workers  integer NOT NULL,
	range_start    integer NOT NULL,
	range_end      integer NOT NULL,
	items          integer NOT NULL,
	resolved       integer NOT NULL,
	unresolved     integer NOT NULL,
	skipped_chunks integer NOT NULL,
	artifact       text NOT NULL,
	finished_at    timestamptz NOT NULL,
	PRIMARY KEY (run_id, worker_id)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// NotifyDone upserts the worker's completion row.
func (s *RunStore) NotifyDone(ctx context.Context, summary enrich.Summary) error {
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id, worker_id, total_workers, range_start, range_end,
	items, resolved, unresolved, skipped_chunks, artifact, finished_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (run_id, worker_id) DO UPDATE SET
	total_workers = EXCLUDED.total_workers,
	range_start = EXCLUDED.range_start,
	range_end = EXCLUDED.range_end,
	items = EXCLUDED.items,
	resolved = EXCLUDED.resolved,
	unresolved = EXCLUDED.unresolved,
	skipped_chunks = EXCLUDED.skipped_chunks,
	artifact = EXCLUDED.artifact,
	finished_at = EXCLUDED.finished_at`, s.table)
	_, err := s.pool.Exec(ctx, query,
		summary.RunID,
		summary.WorkerID,
		summary.TotalWorkers,
		summary.Start,
		summary.End,
		summary.Items,
		summary.Resolved,
		summary.Unresolved,
		summary.SkippedChunks,
		summary.Artifact,
		s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert run row: %w", err)
	}
	return nil
}

// WorkerRuns lists the completion rows of runID ordered by range start.
func (s *RunStore) WorkerRuns(ctx context.Context, runID string) ([]WorkerRun, error) {
	query := fmt.Sprintf(`
SELECT run_id::text, worker_id, total_workers, range_start, range_end,
	items, resolved, unresolved, skipped_chunks, artifact, finished_at
FROM %s
WHERE run_id = $1
ORDER BY range_start`, s.table)
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list worker runs: %w", err)
	}
	defer rows.Close()

	var runs []WorkerRun
	for rows.Next() {
		var run WorkerRun
		if err := rows.Scan(
			&run.RunID,
			&run.WorkerID,
			&run.TotalWorkers,
			&run.Start,
			&run.End,
			&run.Items,
			&run.Resolved,
			&run.Unresolved,
			&run.SkippedChunks,
			&run.Artifact,
			&run.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan worker run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate worker runs: %w", err)
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}
	return runs, nil
}
