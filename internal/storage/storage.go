// Package storage defines the blob store used for worker artifacts. The
// enricher depends only on this interface so artifacts can land on the local
// filesystem, in a GCS bucket, or in memory during tests.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by GetObject when no object exists at path.
var ErrNotFound = errors.New("object not found")

// BlobStore persists whole objects addressed by a relative path.
type BlobStore interface {
	// PutObject writes the object and returns a URI describing where it landed.
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
	GetObject(ctx context.Context, path string) ([]byte, error)
}
