package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/rating-enricher/internal/storage"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "path/items.json", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "memory://path/items.json", uri)

	payload[0] = 'C'
	got, err := store.GetObject(context.Background(), "path/items.json")
	require.NoError(t, err)
	assert.Equal(t, "content", string(got))

	got[0] = 'X'
	again, err := store.GetObject(context.Background(), "path/items.json")
	require.NoError(t, err)
	assert.Equal(t, "content", string(again))
}

func TestBlobStoreMissingAndPaths(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	_, err := store.GetObject(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.PutObject(context.Background(), "", "", bytes.NewReader(nil))
	assert.Error(t, err)

	for _, p := range []string{"b.json", "a.json"} {
		_, err := store.PutObject(context.Background(), p, "", bytes.NewReader([]byte("{}")))
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a.json", "b.json"}, store.Paths())
}
