package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	gstorage "cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/rating-enricher/internal/catalog"
	"github.com/JakeFAU/rating-enricher/internal/storage/gcs"
	"github.com/JakeFAU/rating-enricher/internal/storage/local"
	pgstore "github.com/JakeFAU/rating-enricher/internal/storage/postgres"
)

func newMergeCmd() *cobra.Command {
	var (
		out   string
		runID string
	)
	cmd := &cobra.Command{
		Use:   "merge [artifact...]",
		Short: "Merge worker artifacts back into one catalog",
		Long: `Concatenates the item lists of worker artifacts in range order and
writes a single catalog. Artifacts are local paths, file:// or gs:// URIs.
With --run-id the artifact list is read from the runs table instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := envFrom(cmd.Context())
			if err != nil {
				return err
			}
			if runID == "" && len(args) == 0 {
				return errors.New("merge needs artifacts or --run-id")
			}
			if out == "" {
				out = e.cfg.Catalog.Path
			}
			return runMerge(cmd.Context(), e, args, runID, out)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "merged catalog path (default: the catalog path)")
	cmd.Flags().StringVar(&runID, "run-id", "", "merge every artifact recorded for this run")
	return cmd
}

func runMerge(ctx context.Context, e *env, uris []string, runID, out string) error {
	logger := e.logger.Named("merge")
	if runID != "" {
		recorded, err := artifactsForRun(ctx, e, runID)
		if err != nil {
			return err
		}
		uris = append(uris, recorded...)
	}

	r := &artifactReader{logger: logger}
	defer r.close()
	artifacts := make([][]byte, 0, len(uris))
	for _, uri := range uris {
		data, err := r.read(ctx, uri)
		if err != nil {
			return err
		}
		artifacts = append(artifacts, data)
	}

	merged, err := catalog.Merge(artifacts, e.cfg.Catalog.ListKey)
	if err != nil {
		return err
	}
	uri, err := writeLocal(ctx, out, merged)
	if err != nil {
		return err
	}
	logger.Info("catalog merged", zap.Int("artifacts", len(artifacts)), zap.String("uri", uri))
	return nil
}

func artifactsForRun(ctx context.Context, e *env, runID string) ([]string, error) {
	if e.cfg.DB.DSN == "" {
		return nil, errors.New("--run-id requires db.dsn")
	}
	ratings, err := pgstore.NewRatingStore(ctx, pgstore.RatingStoreConfig{DSN: e.cfg.DB.DSN, Table: e.cfg.DB.Table, MaxConns: 1})
	if err != nil {
		return nil, err
	}
	defer ratings.Close()
	pool, ok := ratings.Pool()
	if !ok {
		return nil, errors.New("rating store pool cannot run queries")
	}
	runs, err := pgstore.NewRunStore(pool, e.cfg.DB.RunsTable)
	if err != nil {
		return nil, err
	}
	workers, err := runs.WorkerRuns(ctx, runID)
	if err != nil {
		return nil, err
	}
	uris := make([]string, 0, len(workers))
	for _, w := range workers {
		if w.Artifact == "" {
			return nil, fmt.Errorf("worker %d of run %s recorded no artifact", w.WorkerID, runID)
		}
		uris = append(uris, w.Artifact)
	}
	if total := workers[0].TotalWorkers; len(workers) != total {
		e.logger.Warn("run is incomplete", zap.String("run_id", runID), zap.Int("reported", len(workers)), zap.Int("total_workers", total))
	}
	return uris, nil
}

// artifactReader opens a GCS client on first use.
type artifactReader struct {
	client *gstorage.Client
	logger *zap.Logger
}

func (r *artifactReader) read(ctx context.Context, uri string) ([]byte, error) {
	switch {
	case strings.HasPrefix(uri, "gs://"):
		u, err := url.Parse(uri)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", uri, err)
		}
		if r.client == nil {
			if r.client, err = gstorage.NewClient(ctx); err != nil {
				return nil, fmt.Errorf("create GCS client: %w", err)
			}
		}
		store, err := gcs.New(r.client, gcs.Config{Bucket: u.Host}, r.logger)
		if err != nil {
			return nil, err
		}
		return store.GetObject(ctx, strings.TrimPrefix(u.Path, "/"))
	case strings.HasPrefix(uri, "file://"):
		uri = strings.TrimPrefix(uri, "file://")
	}
	// #nosec G304 -- artifact paths come from the operator.
	data, err := os.ReadFile(uri)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return data, nil
}

func (r *artifactReader) close() {
	if r.client != nil {
		if err := r.client.Close(); err != nil {
			r.logger.Warn("close GCS client", zap.Error(err))
		}
	}
}

// writeLocal replaces path atomically.
func writeLocal(ctx context.Context, path string, data []byte) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	store, err := local.New(local.Config{BaseDir: filepath.Dir(abs)})
	if err != nil {
		return "", err
	}
	return store.PutObject(ctx, filepath.Base(abs), "application/json", bytes.NewReader(data))
}
