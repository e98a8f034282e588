package simplecatalog_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-catalog/pkg/simplecatalog"
	"github.com/tendant/simple-catalog/pkg/simplecatalog/objectkey"
	memorystorage "github.com/tendant/simple-catalog/pkg/simplecatalog/storage/memory"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func pngPayload(size int) []byte {
	b := make([]byte, size)
	copy(b, pngHeader)
	return b
}

func pngAttachment(size int) simplecatalog.Attachment {
	return simplecatalog.Attachment{
		Reader:      bytes.NewReader(pngPayload(size)),
		Size:        int64(size),
		ContentType: "image/png",
		FileName:    "pizza.png",
	}
}

func TestImageStore_Store(t *testing.T) {
	ctx := context.Background()
	backend := memorystorage.New()
	images := simplecatalog.NewImageStore(backend)

	blob, err := images.Store(ctx, pngAttachment(2048))
	require.NoError(t, err)
	assert.Regexp(t, `^\d+-[0-9a-f]{16}\.png$`, blob.Name)
	assert.Equal(t, int64(2048), blob.Size)
	assert.Equal(t, "image/png", blob.ContentType)

	ok, err := images.Exists(ctx, blob.Name)
	require.NoError(t, err)
	assert.True(t, ok)

	rc, meta, err := images.Open(ctx, blob.Name)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Len(t, data, 2048)
	assert.Equal(t, "image/png", meta.ContentType)
}

func TestImageStore_TypePolicy(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		fileName    string
		contentType string
		wantErr     error
	}{
		{"png", "a.png", "image/png", nil},
		{"upper-case extension", "A.JPG", "image/jpeg", nil},
		{"jpg media type alias", "a.jpg", "image/jpg", nil},
		{"media type params", "a.webp", "image/webp; charset=binary", nil},
		{"gif", "a.gif", "IMAGE/GIF", nil},
		{"exe", "setup.exe", "application/octet-stream", simplecatalog.ErrUnsupportedType},
		{"image type with exe extension", "setup.exe", "image/png", simplecatalog.ErrUnsupportedType},
		{"png extension with text type", "a.png", "text/plain", simplecatalog.ErrUnsupportedType},
		{"svg", "a.svg", "image/svg+xml", simplecatalog.ErrUnsupportedType},
		{"no extension", "png", "image/png", simplecatalog.ErrUnsupportedType},
		{"bad media type", "a.png", "image/", simplecatalog.ErrUnsupportedType},
		{"empty media type", "a.png", "", simplecatalog.ErrUnsupportedType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := memorystorage.New()
			images := simplecatalog.NewImageStore(backend)
			_, err := images.Store(ctx, simplecatalog.Attachment{
				Reader:      bytes.NewReader(pngPayload(64)),
				Size:        64,
				ContentType: tt.contentType,
				FileName:    tt.fileName,
			})
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, 1, backend.Len())
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, backend.Len())
		})
	}
}

func TestImageStore_SizeLimit(t *testing.T) {
	ctx := context.Background()
	policy := simplecatalog.DefaultImagePolicy()
	policy.MaxSize = 1024

	t.Run("at limit", func(t *testing.T) {
		backend := memorystorage.New()
		images := simplecatalog.NewImageStore(backend, simplecatalog.WithImagePolicy(policy))
		_, err := images.Store(ctx, pngAttachment(1024))
		require.NoError(t, err)
	})

	t.Run("declared size over limit", func(t *testing.T) {
		backend := memorystorage.New()
		images := simplecatalog.NewImageStore(backend, simplecatalog.WithImagePolicy(policy))
		_, err := images.Store(ctx, pngAttachment(1025))
		assert.ErrorIs(t, err, simplecatalog.ErrSizeExceeded)
		assert.Equal(t, 0, backend.Len())
	})

	t.Run("undeclared size over limit", func(t *testing.T) {
		backend := memorystorage.New()
		images := simplecatalog.NewImageStore(backend, simplecatalog.WithImagePolicy(policy))
		att := pngAttachment(4096)
		att.Size = -1
		_, err := images.Store(ctx, att)
		assert.ErrorIs(t, err, simplecatalog.ErrSizeExceeded)
		assert.Equal(t, simplecatalog.KindSizeExceeded, simplecatalog.KindOf(err))
		assert.Equal(t, 0, backend.Len())
	})

	t.Run("default limit is 5 MiB", func(t *testing.T) {
		images := simplecatalog.NewImageStore(memorystorage.New())
		assert.Equal(t, int64(5*1024*1024), images.Policy().MaxSize)
	})
}

func TestImageStore_Sniffing(t *testing.T) {
	ctx := context.Background()
	policy := simplecatalog.DefaultImagePolicy()
	policy.SniffContent = true
	backend := memorystorage.New()
	images := simplecatalog.NewImageStore(backend, simplecatalog.WithImagePolicy(policy))

	_, err := images.Store(ctx, pngAttachment(128))
	require.NoError(t, err)

	_, err = images.Store(ctx, simplecatalog.Attachment{
		Reader:      strings.NewReader("MZ this is really an executable"),
		Size:        -1,
		ContentType: "image/png",
		FileName:    "evil.png",
	})
	assert.ErrorIs(t, err, simplecatalog.ErrUnsupportedType)
	assert.Equal(t, 1, backend.Len())
}

func TestImageStore_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	images := simplecatalog.NewImageStore(memorystorage.New())

	blob, err := images.Store(ctx, pngAttachment(16))
	require.NoError(t, err)

	require.NoError(t, images.Delete(ctx, blob.Name))
	require.NoError(t, images.Delete(ctx, blob.Name))

	ok, err := images.Exists(ctx, blob.Name)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = images.Open(ctx, blob.Name)
	assert.ErrorIs(t, err, simplecatalog.ErrBlobNotFound)
}

func TestImageStore_RejectsUnsafeNames(t *testing.T) {
	ctx := context.Background()
	images := simplecatalog.NewImageStore(memorystorage.New())

	for _, name := range []string{"", "../etc/passwd", "/abs.png", "a\\b.png"} {
		assert.ErrorIs(t, images.Delete(ctx, name), simplecatalog.ErrInvalidBlobName, name)
		_, _, err := images.Open(ctx, name)
		assert.ErrorIs(t, err, simplecatalog.ErrInvalidBlobName, name)
		assert.Equal(t, simplecatalog.KindNotFound, simplecatalog.KindOf(err))
		ok, err := images.Exists(ctx, name)
		assert.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestImageStore_KeyGenerator(t *testing.T) {
	ctx := context.Background()
	images := simplecatalog.NewImageStore(memorystorage.New(),
		simplecatalog.WithKeyGenerator(objectkey.NewShardedGenerator()))

	blob, err := images.Store(ctx, pngAttachment(16))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(blob.Name, "originals/"))
}

type failingUploadStore struct {
	*memorystorage.Backend
}

func (f failingUploadStore) UploadWithParams(ctx context.Context, r io.Reader, p simplecatalog.UploadParams) error {
	// simulate a torn write: bytes land, then the backend reports failure
	_ = f.Backend.UploadWithParams(ctx, io.LimitReader(r, 4), p)
	return errors.New("connection reset")
}

func TestImageStore_UploadFailureLeavesNothing(t *testing.T) {
	ctx := context.Background()
	backend := memorystorage.New()
	images := simplecatalog.NewImageStore(failingUploadStore{backend})

	_, err := images.Store(ctx, pngAttachment(64))
	require.Error(t, err)
	assert.Equal(t, simplecatalog.KindPersistenceError, simplecatalog.KindOf(err))
	assert.Equal(t, 0, backend.Len())
}
