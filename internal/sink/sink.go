// Package sink writes the results of a run: the enriched catalog artifact,
// and the completion notice other systems wait on.
package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/JakeFAU/rating-enricher/internal/catalog"
	"github.com/JakeFAU/rating-enricher/internal/enrich"
	"github.com/JakeFAU/rating-enricher/internal/publisher"
	"github.com/JakeFAU/rating-enricher/internal/storage"
)

const jsonContentType = "application/json"

// ArtifactName is the object name of a worker's artifact. Unpartitioned runs
// overwrite the catalog itself.
func ArtifactName(catalogPath string, partition *catalog.PartitionInfo) string {
	if partition == nil {
		return filepath.Base(catalogPath)
	}
	return "items_worker_" + strconv.Itoa(partition.WorkerID) + ".json"
}

// ArtifactWriter encodes documents into a BlobStore.
type ArtifactWriter struct {
	Store       storage.BlobStore
	CatalogPath string
}

var _ enrich.ArtifactWriter = (*ArtifactWriter)(nil)

// WriteArtifact implements enrich.ArtifactWriter.
func (w *ArtifactWriter) WriteArtifact(
	ctx context.Context,
	doc *catalog.Document,
	items []*catalog.Item,
	partition *catalog.PartitionInfo,
) (string, error) {
	if w.Store == nil {
		return "", fmt.Errorf("artifact writer has no store")
	}
	data, err := doc.Encode(items, partition)
	if err != nil {
		return "", err
	}
	name := ArtifactName(w.CatalogPath, partition)
	uri, err := w.Store.PutObject(ctx, name, jsonContentType, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("write artifact %s: %w", name, err)
	}
	return uri, nil
}

// CompletionNotifier publishes the run summary to a topic.
type CompletionNotifier struct {
	Publisher publisher.Publisher
	Topic     string
}

var _ enrich.Notifier = (*CompletionNotifier)(nil)

// NotifyDone implements enrich.Notifier.
func (n *CompletionNotifier) NotifyDone(ctx context.Context, summary enrich.Summary) error {
	attrs := map[string]string{
		"run_id":        summary.RunID,
		"worker_id":     strconv.Itoa(summary.WorkerID),
		"total_workers": strconv.Itoa(summary.TotalWorkers),
	}
	if _, err := n.Publisher.Publish(ctx, n.Topic, summary, attrs); err != nil {
		return fmt.Errorf("notify %s: %w", n.Topic, err)
	}
	return nil
}

// Notifiers fans a summary out to every notifier and joins their errors.
type Notifiers []enrich.Notifier

// NotifyDone implements enrich.Notifier.
func (ns Notifiers) NotifyDone(ctx context.Context, summary enrich.Summary) error {
	var errs []error
	for _, n := range ns {
		if n == nil {
			continue
		}
		if err := n.NotifyDone(ctx, summary); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
