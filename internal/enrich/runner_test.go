package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/rating-enricher/internal/catalog"
	"github.com/JakeFAU/rating-enricher/internal/progress"
)

type captureWriter struct {
	data      []byte
	partition *catalog.PartitionInfo
	err       error
}

func (w *captureWriter) WriteArtifact(_ context.Context, doc *catalog.Document, items []*catalog.Item, p *catalog.PartitionInfo) (string, error) {
	if w.err != nil {
		return "", w.err
	}
	data, err := doc.Encode(items, p)
	if err != nil {
		return "", err
	}
	w.data = data
	w.partition = p
	return "memory://artifact.json", nil
}

type captureRecorder struct {
	records []Record
}

func (r *captureRecorder) RecordResults(_ context.Context, records []Record) error {
	r.records = append(r.records, records...)
	return nil
}

type captureNotifier struct {
	summaries []Summary
}

func (n *captureNotifier) NotifyDone(_ context.Context, s Summary) error {
	n.summaries = append(n.summaries, s)
	return nil
}

type captureEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *captureEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *captureEmitter) count(stage progress.Stage) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, evt := range e.events {
		if evt.Stage == stage {
			n++
		}
	}
	return n
}

func newTestRunner(site *fakeSite, launcher *fakeLauncher, w ArtifactWriter) *Runner {
	sleeper := &recordingSleeper{}
	return &Runner{
		Chunker: newTestChunker(launcher, sleeper),
		Scheduler: &Scheduler{
			Concurrency:    3,
			LongBreakEvery: 5,
			Pacing:         zeroPacing(),
			Sleeper:        sleeper,
		},
		Executor:  newTestExecutor(site, sleeper),
		Artifacts: w,
	}
}

func TestRunnerEndToEnd(t *testing.T) {
	t.Parallel()

	doc, err := catalog.Decode([]byte(`{"beers":[{"beer_name":"Nils Oscar God Lager 2019"},{"beer_name":"Test"}]}`),
		"beers", "beer_name")
	require.NoError(t, err)

	site := &fakeSite{
		ratings:  map[string]float64{"Nils Oscar God Lager": 4.1},
		notReady: map[string]bool{"Nils Oscar God Lager 2019": true},
	}
	launcher := &fakeLauncher{site: site}
	writer := &captureWriter{}
	recorder := &captureRecorder{}
	notifier := &captureNotifier{}
	emitter := &captureEmitter{}
	r := newTestRunner(site, launcher, writer)
	r.Recorder = recorder
	r.Notifier = notifier
	r.Progress = emitter

	runID := uuid.Must(uuid.NewV7())
	summary, err := r.Run(context.Background(), runID, doc, Plan{TotalWorkers: 1, Start: -1, End: -1, ChunkSize: 20})
	require.NoError(t, err)

	require.Equal(t, 2, summary.Items)
	require.Equal(t, 1, summary.Resolved)
	require.Equal(t, 1, summary.Unresolved)
	require.Equal(t, map[string]int{"fallback": 1}, summary.ByVia)
	require.False(t, summary.Partitioned)
	require.Nil(t, writer.partition)
	require.Equal(t, "memory://artifact.json", summary.Artifact)

	var out struct {
		Beers []struct {
			Name   string   `json:"beer_name"`
			Rating *float64 `json:"rating"`
			Link   *string  `json:"rating_link"`
		} `json:"beers"`
	}
	require.NoError(t, json.Unmarshal(writer.data, &out))
	require.Len(t, out.Beers, 2)
	require.NotNil(t, out.Beers[0].Rating)
	require.InDelta(t, 4.1, *out.Beers[0].Rating, 1e-9)
	require.Nil(t, out.Beers[1].Rating)
	require.Nil(t, out.Beers[1].Link)

	require.Len(t, recorder.records, 2)
	require.Equal(t, ViaFallback, recorder.records[0].Via)
	require.Equal(t, runID, recorder.records[0].RunID)
	require.Len(t, notifier.summaries, 1)

	require.Equal(t, 1, emitter.count(progress.StageRunStart))
	require.Equal(t, 2, emitter.count(progress.StageItemDone))
	require.Equal(t, 1, emitter.count(progress.StageChunkStart))
	require.Equal(t, 1, emitter.count(progress.StageChunkDone))
	require.Equal(t, 1, emitter.count(progress.StageRunDone))
	require.Len(t, launcher.Sessions(), 1)
}

func TestRunnerPartitionedArtifact(t *testing.T) {
	t.Parallel()

	doc, err := catalog.Decode([]byte(`{"wines":[
		{"wine_name":"a"},{"wine_name":"b"},{"wine_name":"c"},{"wine_name":"d"},{"wine_name":"e"}]}`),
		"wines", "wine_name")
	require.NoError(t, err)

	site := &fakeSite{ratings: map[string]float64{"c": 1, "d": 2, "e": 3}}
	launcher := &fakeLauncher{site: site}
	writer := &captureWriter{}
	r := newTestRunner(site, launcher, writer)

	summary, err := r.Run(context.Background(), uuid.New(), doc, Plan{WorkerID: 1, TotalWorkers: 2, Start: -1, End: -1, ChunkSize: 2})
	require.NoError(t, err)
	require.True(t, summary.Partitioned)
	require.Equal(t, 3, summary.Resolved)
	require.Equal(t, &catalog.PartitionInfo{WorkerID: 1, TotalWorkers: 2, Start: 2, End: 5}, writer.partition)
	require.Len(t, launcher.Sessions(), 2)

	out, err := catalog.Decode(writer.data, "wines", "wine_name")
	require.NoError(t, err)
	require.Len(t, out.Items, 3)
	require.Equal(t, "c", out.Items[0].SearchTerm)
}

func TestRunnerNullsItemsOfSkippedChunks(t *testing.T) {
	t.Parallel()

	doc, err := catalog.Decode([]byte(`{"wines":[{"wine_name":"a","rating":3.9,"rating_link":"https://stale.example/a"},{"wine_name":"b"},{"wine_name":"c"}]}`),
		"wines", "wine_name")
	require.NoError(t, err)

	site := &fakeSite{ratings: map[string]float64{"a": 4, "b": 4, "c": 4}}
	launcher := &fakeLauncher{site: site, failOn: map[int]bool{0: true}}
	writer := &captureWriter{}
	r := newTestRunner(site, launcher, writer)

	summary, err := r.Run(context.Background(), uuid.New(), doc, Plan{TotalWorkers: 1, Start: -1, End: -1, ChunkSize: 2})
	require.NoError(t, err)
	require.Equal(t, 1, summary.SkippedChunks)
	require.Equal(t, 1, summary.Resolved)
	require.Equal(t, 2, summary.Unresolved)

	out, err := catalog.Decode(writer.data, "wines", "wine_name")
	require.NoError(t, err)
	require.Len(t, out.Items, 3)
	require.Nil(t, out.Items[0].Rating)
	require.NotNil(t, out.Items[2].Rating)

	var first map[string]any
	entries := struct {
		Wines []json.RawMessage `json:"wines"`
	}{}
	require.NoError(t, json.Unmarshal(writer.data, &entries))
	require.NoError(t, json.Unmarshal(entries.Wines[0], &first))
	require.Contains(t, first, "rating_link")
	require.Nil(t, first["rating"])
	require.Nil(t, first["rating_link"])
}

func TestRunnerLogsArtifactOnce(t *testing.T) {
	t.Parallel()

	doc, err := catalog.Decode([]byte(`{"wines":[{"wine_name":"a"}]}`), "wines", "wine_name")
	require.NoError(t, err)
	site := &fakeSite{ratings: map[string]float64{"a": 4}}
	r := newTestRunner(site, &fakeLauncher{site: site}, &captureWriter{})
	core, logs := observer.New(zapcore.InfoLevel)
	r.Logger = zap.New(core)

	_, err = r.Run(context.Background(), uuid.New(), doc, Plan{TotalWorkers: 1, Start: -1, End: -1, ChunkSize: 20})
	require.NoError(t, err)
	require.Equal(t, 1, logs.FilterMessage("artifact written").Len())
}

func TestRunnerRejectsBadPlan(t *testing.T) {
	t.Parallel()

	doc, err := catalog.Decode([]byte(`{"wines":[]}`), "wines", "wine_name")
	require.NoError(t, err)
	r := newTestRunner(&fakeSite{}, &fakeLauncher{}, &captureWriter{})

	_, err = r.Run(context.Background(), uuid.New(), doc, Plan{WorkerID: 3, TotalWorkers: 2, Start: -1, End: -1, ChunkSize: 20})
	require.ErrorIs(t, err, ErrInvalidPartition)
}

func TestRunnerArtifactFailure(t *testing.T) {
	t.Parallel()

	doc, err := catalog.Decode([]byte(`{"wines":[{"wine_name":"a"}]}`), "wines", "wine_name")
	require.NoError(t, err)
	site := &fakeSite{}
	r := newTestRunner(site, &fakeLauncher{site: site}, &captureWriter{err: errors.New("disk full")})

	_, err = r.Run(context.Background(), uuid.New(), doc, Plan{TotalWorkers: 1, Start: -1, End: -1, ChunkSize: 20})
	require.ErrorContains(t, err, "disk full")
}

func TestRunnerEmptyRange(t *testing.T) {
	t.Parallel()

	doc, err := catalog.Decode([]byte(`{"wines":[]}`), "wines", "wine_name")
	require.NoError(t, err)
	launcher := &fakeLauncher{}
	writer := &captureWriter{}
	r := newTestRunner(&fakeSite{}, launcher, writer)

	summary, err := r.Run(context.Background(), uuid.New(), doc, Plan{TotalWorkers: 1, Start: -1, End: -1, ChunkSize: 20})
	require.NoError(t, err)
	require.Zero(t, summary.Items)
	require.Empty(t, launcher.Sessions())
	require.JSONEq(t, `{"wines":[]}`, string(writer.data))
}
