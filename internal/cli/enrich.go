package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/rating-enricher/internal/browser"
	"github.com/JakeFAU/rating-enricher/internal/cache"
	"github.com/JakeFAU/rating-enricher/internal/catalog"
	"github.com/JakeFAU/rating-enricher/internal/config"
	"github.com/JakeFAU/rating-enricher/internal/enrich"
	"github.com/JakeFAU/rating-enricher/internal/logging"
	"github.com/JakeFAU/rating-enricher/internal/progress"
	"github.com/JakeFAU/rating-enricher/internal/progress/sinks"
	pubsubpub "github.com/JakeFAU/rating-enricher/internal/publisher/pubsub"
	"github.com/JakeFAU/rating-enricher/internal/server"
	"github.com/JakeFAU/rating-enricher/internal/sink"
	"github.com/JakeFAU/rating-enricher/internal/sites"
	"github.com/JakeFAU/rating-enricher/internal/storage"
	"github.com/JakeFAU/rating-enricher/internal/storage/gcs"
	"github.com/JakeFAU/rating-enricher/internal/storage/local"
	pgstore "github.com/JakeFAU/rating-enricher/internal/storage/postgres"
)

// staticTransport replaces the colly driver's transport; tests point it at
// a mock.
var staticTransport http.RoundTripper

func newEnrichCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Look up ratings for this worker's slice of the catalog",
		Long: `Loads the catalog, selects this worker's partition (or the explicit
--start/--end range), looks every item up on the configured site and
writes the enriched artifact. Partitioned runs write items_worker_<id>.json;
single-worker runs overwrite the catalog.`,
		Args: cobra.NoArgs,
		RunE: runEnrich,
	}
	f := cmd.Flags()
	f.Int("worker-id", 0, "zero-based worker index")
	f.Int("total-workers", 1, "number of workers sharing the catalog")
	f.Int("start", -1, "explicit range start (inclusive); requires --end")
	f.Int("end", -1, "explicit range end (exclusive); requires --start")
	f.String("site", "", "rating site (untappd, vivino)")
	f.String("country", "", "ship-to country code")
	f.String("state", "", "ship-to state code")
	f.String("driver", "", "automation driver (chromedp, colly)")
	f.Int("concurrency", 0, "items in flight per session")
	f.Int("chunk-size", 0, "items per browser session")
	f.Int("port", 0, "status server port; 0 disables it")
	return cmd
}

func runEnrich(cmd *cobra.Command, _ []string) error {
	e, err := envFrom(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	cfg := e.cfg

	runID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("run id: %w", err)
	}
	logger := logging.ForWorker(e.logger, runID.String(), cfg.Worker.ID, cfg.Worker.Total)

	doc, err := catalog.Load(cfg.Catalog.Path, cfg.Catalog.ListKey, cfg.Catalog.NameField)
	if err != nil {
		return err
	}

	app, err := build(ctx, cfg, logger)
	if err != nil {
		app.close(logger)
		return err
	}
	defer app.close(logger)
	// the runner tags its own lines with run and worker ids
	app.runner.Logger = e.logger.Named("runner")

	srvCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	if app.server != nil {
		go func() {
			if err := app.server.ListenAndServe(srvCtx, cfg.Server.Port); err != nil {
				logger.Error("status server failed", zap.Error(err))
			}
		}()
		app.server.SetReady(true)
	}

	summary, err := app.runner.Run(ctx, runID, doc, cfg.Plan())
	if err != nil {
		return err
	}
	logger.Info("run complete",
		zap.Int("items", summary.Items),
		zap.Int("resolved", summary.Resolved),
		zap.Int("unresolved", summary.Unresolved),
		zap.Any("by_via", summary.ByVia),
		zap.Int("skipped_chunks", summary.SkippedChunks),
		zap.String("artifact", summary.Artifact),
		zap.Duration("duration", summary.Duration),
	)
	if errors.Is(ctx.Err(), context.Canceled) {
		logger.Warn("run interrupted; artifact holds partial results")
	}
	return nil
}

// app holds the wired pipeline and everything that needs closing.
type app struct {
	runner  *enrich.Runner
	server  *server.Server
	hub     *progress.Hub
	closers []func() error
}

func (a *app) close(logger *zap.Logger) {
	if a == nil {
		return
	}
	if a.hub != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := a.hub.Close(ctx); err != nil {
			logger.Warn("progress hub close failed", zap.Error(err))
		}
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}
}

func build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{}

	site, err := sites.New(cfg.Site.Name)
	if err != nil {
		return a, err
	}
	launcher, err := newLauncher(cfg, logger)
	if err != nil {
		return a, err
	}

	lookupCache, closeCache, err := cache.New(cache.Options{
		Backend:   cfg.Cache.Backend,
		Size:      cfg.Cache.Size,
		RedisAddr: cfg.Cache.RedisAddr,
		TTL:       cfg.Cache.TTL,
		Namespace: site.Name(),
	}, logger)
	if err != nil {
		return a, err
	}
	a.closers = append(a.closers, closeCache)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		return a, err
	}
	snapshot := sinks.NewSnapshotSink()
	a.hub = progress.NewHub(progress.Config{Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("progress")), promSink, snapshot)

	if cfg.Server.Port > 0 {
		a.server, err = server.NewServer(registry, snapshot, logger)
		if err != nil {
			return a, err
		}
	}

	store, err := newBlobStore(ctx, cfg, logger, a)
	if err != nil {
		return a, err
	}

	var notifiers sink.Notifiers
	var recorder enrich.Recorder
	if cfg.DB.DSN != "" {
		ratings, err := pgstore.NewRatingStore(ctx, pgstore.RatingStoreConfig{
			DSN: cfg.DB.DSN, Table: cfg.DB.Table, MaxConns: cfg.DB.MaxConns,
		})
		if err != nil {
			return a, err
		}
		a.closers = append(a.closers, func() error { ratings.Close(); return nil })
		if err := ratings.EnsureSchema(ctx); err != nil {
			return a, err
		}
		recorder = ratings
		if pool, ok := ratings.Pool(); ok {
			runs, err := pgstore.NewRunStore(pool, cfg.DB.RunsTable)
			if err != nil {
				return a, err
			}
			if err := runs.EnsureSchema(ctx); err != nil {
				return a, err
			}
			notifiers = append(notifiers, runs)
		}
	}
	if cfg.PubSub.Topic != "" {
		pub, err := pubsubpub.Open(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return a, err
		}
		a.closers = append(a.closers, pub.Close)
		notifiers = append(notifiers, &sink.CompletionNotifier{Publisher: pub, Topic: cfg.PubSub.Topic})
	}

	retry := cfg.RetryPolicy()
	pacing := cfg.PacingPolicy()
	chunker := &enrich.Chunker{
		Launcher:   launcher,
		Identities: cfg.Identities(),
		Retry:      retry,
		Pacing:     pacing,
		Logger:     logger.Named("chunker"),
	}
	if neg, ok := site.(enrich.LocaleNegotiator); ok && cfg.Browser.Driver == "chromedp" {
		chunker.Negotiator = neg
		chunker.Locale = cfg.Locale()
	}

	a.runner = &enrich.Runner{
		Chunker: chunker,
		Scheduler: &enrich.Scheduler{
			Concurrency:    cfg.Enrich.Concurrency,
			LongBreakEvery: cfg.Enrich.LongBreakEvery,
			Pacing:         pacing,
			Logger:         logger.Named("scheduler"),
		},
		Executor: &enrich.Executor{
			Site:   site,
			Retry:  retry,
			Pacing: pacing,
			Cache:  lookupCache,
			Scroll: cfg.Browser.Scroll,
			Logger: logger.Named("executor"),
		},
		Artifacts: &sink.ArtifactWriter{Store: store, CatalogPath: cfg.Catalog.Path},
		Recorder:  recorder,
		Progress:  a.hub,
		Logger:    logger.Named("runner"),
	}
	if len(notifiers) > 0 {
		a.runner.Notifier = notifiers
	}
	return a, nil
}

func newLauncher(cfg config.Config, logger *zap.Logger) (enrich.Launcher, error) {
	switch cfg.Browser.Driver {
	case "chromedp":
		return browser.NewChromedpLauncher(browser.ChromedpConfig{
			Headless:         cfg.Browser.Headless,
			ExecPath:         cfg.Browser.ExecPath,
			NavTimeout:       cfg.Browser.NavTimeout,
			ReadyTimeout:     cfg.Browser.ReadyTimeout,
			AllowedResources: cfg.Browser.AllowedResources,
			DomainQPS:        cfg.Browser.DomainQPS,
		}, logger.Named("chromedp")), nil
	case "colly":
		return browser.NewCollyLauncher(browser.CollyConfig{
			NavTimeout: cfg.Browser.NavTimeout,
			DomainQPS:  cfg.Browser.DomainQPS,
			Transport:  staticTransport,
		}, logger.Named("colly")), nil
	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.Browser.Driver)
	}
}

func newBlobStore(ctx context.Context, cfg config.Config, logger *zap.Logger, a *app) (storage.BlobStore, error) {
	if cfg.Output.GCSBucket != "" {
		store, client, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.Output.GCSBucket, Prefix: cfg.Output.Prefix}, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		return store, nil
	}
	dir := cfg.Output.Dir
	if dir == "" {
		dir = filepath.Dir(cfg.Catalog.Path)
	}
	if cfg.Output.Prefix != "" {
		dir = filepath.Join(dir, cfg.Output.Prefix)
	}
	return local.New(local.Config{BaseDir: dir})
}
