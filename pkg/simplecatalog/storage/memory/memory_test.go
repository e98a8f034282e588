package memory_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-catalog/pkg/simplecatalog"
	memorystorage "github.com/tendant/simple-catalog/pkg/simplecatalog/storage/memory"
)

func TestMemoryBackend(t *testing.T) {
	backend := memorystorage.New()
	ctx := context.Background()
	testKey := "1718000000000-0011223344556677.png"
	testData := "\x89PNG fake payload"

	t.Run("UploadWithParams", func(t *testing.T) {
		err := backend.UploadWithParams(ctx, strings.NewReader(testData), simplecatalog.UploadParams{
			ObjectKey: testKey,
			MimeType:  "image/png",
		})
		require.NoError(t, err)
		assert.Equal(t, 1, backend.Len())
	})

	t.Run("GetObjectMeta", func(t *testing.T) {
		meta, err := backend.GetObjectMeta(ctx, testKey)
		require.NoError(t, err)
		assert.Equal(t, testKey, meta.Key)
		assert.Equal(t, int64(len(testData)), meta.Size)
		assert.Equal(t, "image/png", meta.ContentType)
	})

	t.Run("Download", func(t *testing.T) {
		rc, err := backend.Download(ctx, testKey)
		require.NoError(t, err)
		defer rc.Close()
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, testData, string(got))
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, backend.Delete(ctx, testKey))
		assert.ErrorIs(t, backend.Delete(ctx, testKey), simplecatalog.ErrBlobNotFound)
		_, err := backend.Download(ctx, testKey)
		assert.ErrorIs(t, err, simplecatalog.ErrBlobNotFound)
		_, err = backend.GetObjectMeta(ctx, testKey)
		assert.ErrorIs(t, err, simplecatalog.ErrBlobNotFound)
	})

	t.Run("Upload defaults mime type", func(t *testing.T) {
		require.NoError(t, backend.Upload(ctx, "raw", strings.NewReader("x")))
		meta, err := backend.GetObjectMeta(ctx, "raw")
		require.NoError(t, err)
		assert.Equal(t, "application/octet-stream", meta.ContentType)
		assert.ElementsMatch(t, []string{"raw"}, backend.Keys())
	})
}
