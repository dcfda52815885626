// Package objectstore_test tests the artifact blob storage backends.
package objectstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/chatterbox-service/internal/objectstore"
)

func TestFSStore_UploadDownload(t *testing.T) {
	t.Parallel()

	store, err := objectstore.NewFS(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	data := []byte("wav bytes")

	err = store.Upload(ctx, "artifact.wav", data)
	require.NoError(t, err)

	downloaded, err := store.Download(ctx, "artifact.wav")
	require.NoError(t, err)
	assert.Equal(t, data, downloaded)
}

func TestFSStore_DownloadMissingKey(t *testing.T) {
	t.Parallel()

	store, err := objectstore.NewFS(t.TempDir())
	require.NoError(t, err)

	_, err = store.Download(context.Background(), "missing.wav")
	require.ErrorIs(t, err, objectstore.ErrObjectNotFound)
}

func TestFSStore_RejectsTraversalKeys(t *testing.T) {
	t.Parallel()

	store, err := objectstore.NewFS(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()

	err = store.Upload(ctx, "../escape.wav", []byte("x"))
	require.ErrorIs(t, err, objectstore.ErrInvalidKey)

	_, err = store.Download(ctx, "a/b.wav")
	require.ErrorIs(t, err, objectstore.ErrInvalidKey)
}
