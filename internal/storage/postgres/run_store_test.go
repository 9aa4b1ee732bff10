package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/rating-enricher/internal/enrich"
)

func TestRunStoreNotifyDone(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStore(mock, "")
	require.NoError(t, err)
	finished := time.Unix(1700000500, 0).UTC()
	store.now = func() time.Time { return finished }

	summary := enrich.Summary{
		RunID: "0190b6f4-1c2d-7a3b-8c4d-5e6f7a8b9c0d", WorkerID: 2, TotalWorkers: 3,
		Start: 6, End: 10, Items: 4, Resolved: 3, Unresolved: 1,
		Artifact: "gs://artifacts/items_worker_2.json",
	}
	mock.ExpectExec("INSERT INTO enrichment_runs").
		WithArgs(summary.RunID, 2, 3, 6, 10, 4, 3, 1, 0, summary.Artifact, finished).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.NotifyDone(context.Background(), summary))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreWorkerRuns(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStore(mock, "runs")
	require.NoError(t, err)
	at := time.Unix(1700000500, 0).UTC()
	runID := "0190b6f4-1c2d-7a3b-8c4d-5e6f7a8b9c0d"

	rows := pgxmock.NewRows([]string{
		"run_id", "worker_id", "total_workers", "range_start", "range_end",
		"items", "resolved", "unresolved", "skipped_chunks", "artifact", "finished_at",
	}).
		AddRow(runID, 0, 2, 0, 5, 5, 5, 0, 0, "file:///tmp/items_worker_0.json", at).
		AddRow(runID, 1, 2, 5, 10, 5, 4, 1, 0, "file:///tmp/items_worker_1.json", at)
	mock.ExpectQuery("SELECT run_id::text").WithArgs(runID).WillReturnRows(rows)

	runs, err := store.WorkerRuns(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 1, runs[1].WorkerID)
	assert.Equal(t, "file:///tmp/items_worker_1.json", runs[1].Artifact)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreWorkerRunsEmpty(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStore(mock, "")
	require.NoError(t, err)
	mock.ExpectQuery("SELECT run_id::text").WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"run_id"}))

	_, err = store.WorkerRuns(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestNewRunStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRunStore(nil, "")
	assert.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewRunStore(mock, "bad-name")
	assert.Error(t, err)

	ratings, err := NewRatingStoreWithPool(mock, "")
	require.NoError(t, err)
	pool, ok := ratings.Pool()
	require.True(t, ok)
	_, err = NewRunStore(pool, "")
	assert.NoError(t, err)
}
