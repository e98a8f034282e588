package simplecatalog_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-catalog/pkg/simplecatalog"
	"github.com/tendant/simple-catalog/pkg/simplecatalog/repo/memory"
	memorystorage "github.com/tendant/simple-catalog/pkg/simplecatalog/storage/memory"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// recordingRepo wraps the memory repository with call counters and
// injectable failures.
type recordingRepo struct {
	*memory.Repository
	createErr error
	deleteErr error
	listErr   error
	lookups   atomic.Int32
}

func (r *recordingRepo) CreateItem(ctx context.Context, item simplecatalog.NewItem) (*simplecatalog.CatalogItem, error) {
	if r.createErr != nil {
		return nil, r.createErr
	}
	return r.Repository.CreateItem(ctx, item)
}

func (r *recordingRepo) ListItems(ctx context.Context) ([]*simplecatalog.CatalogItem, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.Repository.ListItems(ctx)
}

func (r *recordingRepo) GetItem(ctx context.Context, id string) (*simplecatalog.CatalogItem, error) {
	r.lookups.Add(1)
	return r.Repository.GetItem(ctx, id)
}

func (r *recordingRepo) DeleteItem(ctx context.Context, id string) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	return r.Repository.DeleteItem(ctx, id)
}

// recordingBlobs wraps the memory blob backend with injectable delete
// failures and records the context each delete ran under.
type recordingBlobs struct {
	*memorystorage.Backend
	deleteErr   error
	statErr     error
	deleteCtxOK atomic.Bool
	uploads     atomic.Int32
	deletes     atomic.Int32
}

func (b *recordingBlobs) GetObjectMeta(ctx context.Context, key string) (*simplecatalog.ObjectMeta, error) {
	if b.statErr != nil {
		return nil, b.statErr
	}
	return b.Backend.GetObjectMeta(ctx, key)
}

func (b *recordingBlobs) UploadWithParams(ctx context.Context, r io.Reader, p simplecatalog.UploadParams) error {
	b.uploads.Add(1)
	return b.Backend.UploadWithParams(ctx, r, p)
}

func (b *recordingBlobs) Delete(ctx context.Context, key string) error {
	b.deletes.Add(1)
	b.deleteCtxOK.Store(ctx.Err() == nil)
	if b.deleteErr != nil {
		return b.deleteErr
	}
	return b.Backend.Delete(ctx, key)
}

type recordingSink struct {
	mu      sync.Mutex
	created []string
	removed []string
	err     error
}

func (s *recordingSink) ItemCreated(ctx context.Context, item *simplecatalog.CatalogItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, item.ID)
	return s.err
}

func (s *recordingSink) ItemRemoved(ctx context.Context, item *simplecatalog.CatalogItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, item.ID)
	return s.err
}

type fixture struct {
	svc   simplecatalog.Service
	repo  *recordingRepo
	blobs *recordingBlobs
	sink  *recordingSink
}

func setupTestService(t *testing.T, opts ...simplecatalog.Option) *fixture {
	t.Helper()
	f := &fixture{
		repo:  &recordingRepo{Repository: memory.New()},
		blobs: &recordingBlobs{Backend: memorystorage.New()},
		sink:  &recordingSink{},
	}
	options := append([]simplecatalog.Option{
		simplecatalog.WithRepository(f.repo),
		simplecatalog.WithBlobStore(f.blobs),
		simplecatalog.WithEventSink(f.sink),
	}, opts...)
	svc, err := simplecatalog.New(options...)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func createRequest(size int) simplecatalog.CreateItemRequest {
	att := pngAttachment(size)
	return simplecatalog.CreateItemRequest{Fields: validFields(), Image: &att}
}

func TestServiceCreation(t *testing.T) {
	tests := []struct {
		name        string
		options     []simplecatalog.Option
		expectError bool
	}{
		{
			name:        "no options should fail",
			options:     []simplecatalog.Option{},
			expectError: true,
		},
		{
			name: "repository without image store should fail",
			options: []simplecatalog.Option{
				simplecatalog.WithRepository(memory.New()),
			},
			expectError: true,
		},
		{
			name: "with repository and blob store should succeed",
			options: []simplecatalog.Option{
				simplecatalog.WithRepository(memory.New()),
				simplecatalog.WithBlobStore(memorystorage.New()),
			},
		},
		{
			name: "with image store and tuning should succeed",
			options: []simplecatalog.Option{
				simplecatalog.WithRepository(memory.New()),
				simplecatalog.WithImageStore(simplecatalog.NewImageStore(memorystorage.New())),
				simplecatalog.WithCompensationTimeout(time.Second),
				simplecatalog.WithEventSink(nil),
				simplecatalog.WithLogger(nil),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := simplecatalog.New(tt.options...)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func TestCreateItem_Success(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()

	item, err := f.svc.CreateItem(ctx, createRequest(2048))
	require.NoError(t, err)
	assert.True(t, simplecatalog.IsValidID(item.ID))
	assert.NotEmpty(t, item.ImageRef)

	ok, err := simplecatalog.NewImageStore(f.blobs).Exists(ctx, item.ImageRef)
	require.NoError(t, err)
	assert.True(t, ok, "image ref must resolve to a stored blob")
	assert.Equal(t, []string{item.ID}, f.sink.created)
}

func TestCreateItem_MissingImage(t *testing.T) {
	f := setupTestService(t)

	for _, req := range []simplecatalog.CreateItemRequest{
		{Fields: validFields()},
		{Fields: validFields(), Image: &simplecatalog.Attachment{FileName: "a.png", ContentType: "image/png"}},
		// missing image is reported before field problems
		{Fields: simplecatalog.ItemFields{}},
	} {
		_, err := f.svc.CreateItem(context.Background(), req)
		assert.ErrorIs(t, err, simplecatalog.ErrMissingImage)
		assert.Equal(t, simplecatalog.KindMissingImage, simplecatalog.KindOf(err))
	}
	assert.Zero(t, f.blobs.uploads.Load())
	assert.Zero(t, f.blobs.Len())
}

func TestCreateItem_ValidationFailed(t *testing.T) {
	f := setupTestService(t)

	req := createRequest(64)
	req.Fields.Name = str("A")
	req.Fields.Price = str("-5")

	_, err := f.svc.CreateItem(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, simplecatalog.KindValidationFailed, simplecatalog.KindOf(err))
	assert.Equal(t, []string{
		"Name must be at least 2 characters long",
		"Price must be greater than 0",
	}, simplecatalog.ValidationErrors(err))

	assert.Zero(t, f.blobs.uploads.Load())
	assert.Zero(t, f.blobs.Len())

	items, err := f.svc.ListItems(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCreateItem_UnsupportedType(t *testing.T) {
	f := setupTestService(t)

	req := createRequest(64)
	req.Image.FileName = "setup.exe"
	req.Image.ContentType = "application/x-msdownload"

	_, err := f.svc.CreateItem(context.Background(), req)
	assert.ErrorIs(t, err, simplecatalog.ErrUnsupportedType)
	assert.Equal(t, simplecatalog.KindUnsupportedType, simplecatalog.KindOf(err))
	assert.Zero(t, f.blobs.uploads.Load())
	assert.Zero(t, f.blobs.Len())
}

func TestCreateItem_SizeExceeded(t *testing.T) {
	f := setupTestService(t)

	req := createRequest(int(simplecatalog.DefaultMaxImageSize) + 1)
	req.Image.Size = -1

	_, err := f.svc.CreateItem(context.Background(), req)
	assert.Equal(t, simplecatalog.KindSizeExceeded, simplecatalog.KindOf(err))
	assert.Zero(t, f.blobs.uploads.Load())
	assert.Zero(t, f.blobs.Len())
}

func TestCreateItem_RecordFailureRollsBackBlob(t *testing.T) {
	f := setupTestService(t)
	f.repo.createErr = errors.New("database unavailable")

	_, err := f.svc.CreateItem(context.Background(), createRequest(64))
	require.Error(t, err)
	assert.ErrorIs(t, err, simplecatalog.ErrPersistence)
	assert.NotErrorIs(t, err, simplecatalog.ErrCompensationFailed)
	assert.Equal(t, simplecatalog.KindPersistenceError, simplecatalog.KindOf(err))

	assert.Equal(t, int32(1), f.blobs.uploads.Load())
	assert.Zero(t, f.blobs.Len(), "blob must be compensated")
	assert.Empty(t, f.sink.created)
}

func TestCreateItem_FailedCompensationSurfacesBoth(t *testing.T) {
	f := setupTestService(t)
	f.repo.createErr = errors.New("database unavailable")
	f.blobs.deleteErr = errors.New("permission denied")

	_, err := f.svc.CreateItem(context.Background(), createRequest(64))
	require.Error(t, err)

	assert.ErrorIs(t, err, simplecatalog.ErrPersistence)
	assert.ErrorIs(t, err, simplecatalog.ErrCompensationFailed)
	assert.Equal(t, simplecatalog.KindPersistenceError, simplecatalog.KindOf(err))

	var cerr *simplecatalog.CompensationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "create", cerr.Op)
	assert.NotEmpty(t, cerr.BlobName)
	assert.Contains(t, err.Error(), "database unavailable")
	assert.Contains(t, err.Error(), "permission denied")
}

// cancelOnCreateRepo cancels the caller's context while the record write is
// in flight and then fails.
type cancelOnCreateRepo struct {
	*recordingRepo
	cancel context.CancelFunc
}

func (r *cancelOnCreateRepo) CreateItem(ctx context.Context, item simplecatalog.NewItem) (*simplecatalog.CatalogItem, error) {
	r.cancel()
	return nil, ctx.Err()
}

func TestCreateItem_CancelledCallerStillCompensates(t *testing.T) {
	blobs := &recordingBlobs{Backend: memorystorage.New()}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := &cancelOnCreateRepo{recordingRepo: &recordingRepo{Repository: memory.New()}, cancel: cancel}
	svc, err := simplecatalog.New(
		simplecatalog.WithRepository(repo),
		simplecatalog.WithBlobStore(blobs),
	)
	require.NoError(t, err)

	_, err = svc.CreateItem(ctx, createRequest(64))
	require.Error(t, err)
	assert.Equal(t, simplecatalog.KindPersistenceError, simplecatalog.KindOf(err))
	assert.True(t, blobs.deleteCtxOK.Load(), "compensation must not inherit cancellation")
	assert.Zero(t, blobs.Len())
}

func TestListItems(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()

	items, err := f.svc.ListItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	a, err := f.svc.CreateItem(ctx, createRequest(32))
	require.NoError(t, err)
	b, err := f.svc.CreateItem(ctx, createRequest(32))
	require.NoError(t, err)

	items, err = f.svc.ListItems(ctx)
	require.NoError(t, err)
	ids := []string{items[0].ID, items[1].ID}
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)

	f.repo.listErr = errors.New("timeout")
	_, err = f.svc.ListItems(ctx)
	assert.Equal(t, simplecatalog.KindPersistenceError, simplecatalog.KindOf(err))
}

func TestGetItem(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()

	created, err := f.svc.CreateItem(ctx, createRequest(32))
	require.NoError(t, err)

	got, err := f.svc.GetItem(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = f.svc.GetItem(ctx, "ffffffffffffffffffffffff")
	assert.Equal(t, simplecatalog.KindNotFound, simplecatalog.KindOf(err))

	_, err = f.svc.GetItem(ctx, "nope")
	assert.Equal(t, simplecatalog.KindInvalidIdentifier, simplecatalog.KindOf(err))
}

func TestRemoveItem_InvalidIdentifierSkipsLookup(t *testing.T) {
	f := setupTestService(t)

	for _, id := range []string{"", "abc", "zzzzzzzzzzzzzzzzzzzzzzzz"} {
		_, err := f.svc.RemoveItem(context.Background(), id)
		assert.ErrorIs(t, err, simplecatalog.ErrInvalidIdentifier)
	}
	assert.Zero(t, f.repo.lookups.Load())
}

func TestRemoveItem_NotFound(t *testing.T) {
	f := setupTestService(t)

	_, err := f.svc.RemoveItem(context.Background(), "0123456789abcdef01234567")
	assert.ErrorIs(t, err, simplecatalog.ErrItemNotFound)
	assert.Equal(t, simplecatalog.KindNotFound, simplecatalog.KindOf(err))
}

func TestRemoveItem_Success(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()

	item, err := f.svc.CreateItem(ctx, createRequest(64))
	require.NoError(t, err)

	result, err := f.svc.RemoveItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, result.BlobRemoved)
	assert.NoError(t, result.CleanupErr)
	assert.Equal(t, item.ID, result.Item.ID)

	items, err := f.svc.ListItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, f.blobs.Len())
	assert.Equal(t, []string{item.ID}, f.sink.removed)

	_, err = f.svc.RemoveItem(ctx, item.ID)
	assert.Equal(t, simplecatalog.KindNotFound, simplecatalog.KindOf(err))
}

func TestRemoveItem_UpperCaseID(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()

	item, err := f.svc.CreateItem(ctx, createRequest(64))
	require.NoError(t, err)

	upper := bytes.ToUpper([]byte(item.ID))
	_, err = f.svc.RemoveItem(ctx, string(upper))
	require.NoError(t, err)
}

func TestRemoveItem_MissingBlobIsSuccess(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()

	item, err := f.svc.CreateItem(ctx, createRequest(64))
	require.NoError(t, err)
	require.NoError(t, f.blobs.Backend.Delete(ctx, item.ImageRef))

	result, err := f.svc.RemoveItem(ctx, item.ID)
	require.NoError(t, err)
	assert.False(t, result.BlobRemoved, "nothing was there to delete")
	assert.NoError(t, result.CleanupErr)
	assert.Zero(t, f.blobs.deletes.Load())

	_, err = f.svc.GetItem(ctx, item.ID)
	assert.Equal(t, simplecatalog.KindNotFound, simplecatalog.KindOf(err))
}

func TestRemoveItem_ExistenceCheckFailureStillDeletes(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()

	item, err := f.svc.CreateItem(ctx, createRequest(64))
	require.NoError(t, err)
	f.blobs.statErr = errors.New("connection reset")

	result, err := f.svc.RemoveItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, result.BlobRemoved)
	assert.NoError(t, result.CleanupErr)
	assert.Equal(t, int32(1), f.blobs.deletes.Load())
	assert.Zero(t, f.blobs.Backend.Len())
}

func TestOperationsAreTraced(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := setupTestService(t, simplecatalog.WithTracer(tp.Tracer("test")))
	ctx := context.Background()

	item, err := f.svc.CreateItem(ctx, createRequest(64))
	require.NoError(t, err)
	_, err = f.svc.ListItems(ctx)
	require.NoError(t, err)
	_, err = f.svc.GetItem(ctx, item.ID)
	require.NoError(t, err)
	_, err = f.svc.GetItem(ctx, "bogus")
	require.Error(t, err)
	_, err = f.svc.RemoveItem(ctx, item.ID)
	require.NoError(t, err)

	var names []string
	gets := map[string]string{}
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
		if span.Name() != "catalog.get" {
			continue
		}
		id := ""
		for _, kv := range span.Attributes() {
			if kv.Key == "item.id" {
				id = kv.Value.AsString()
			}
		}
		gets[id] = span.Status().Code.String()
	}

	assert.Equal(t, []string{"catalog.create", "catalog.list", "catalog.get", "catalog.get", "catalog.remove"}, names)
	assert.Equal(t, map[string]string{item.ID: "Unset", "": "Error"}, gets)
}

func TestRemoveItem_BlobCleanupFailureIsWarning(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()

	item, err := f.svc.CreateItem(ctx, createRequest(64))
	require.NoError(t, err)
	f.blobs.deleteErr = errors.New("disk read-only")

	result, err := f.svc.RemoveItem(ctx, item.ID)
	require.NoError(t, err)
	assert.False(t, result.BlobRemoved)
	assert.ErrorIs(t, result.CleanupErr, simplecatalog.ErrCompensationFailed)

	_, err = f.svc.GetItem(ctx, item.ID)
	assert.Equal(t, simplecatalog.KindNotFound, simplecatalog.KindOf(err))
}

func TestRemoveItem_RecordDeleteFailureKeepsBlob(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()

	item, err := f.svc.CreateItem(ctx, createRequest(64))
	require.NoError(t, err)
	f.repo.deleteErr = errors.New("lock timeout")

	_, err = f.svc.RemoveItem(ctx, item.ID)
	assert.Equal(t, simplecatalog.KindPersistenceError, simplecatalog.KindOf(err))
	assert.Equal(t, 1, f.blobs.Len(), "blob must stay while the record exists")
}

func TestRemoveItem_ConcurrentRemovesHaveOneWinner(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()

	item, err := f.svc.CreateItem(ctx, createRequest(64))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var ok, notFound atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RemoveItem(ctx, item.ID)
			switch simplecatalog.KindOf(err) {
			case simplecatalog.KindNone:
				ok.Add(1)
			case simplecatalog.KindNotFound:
				notFound.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(9), notFound.Load())
}

func TestEventSinkErrorsDoNotFailOperations(t *testing.T) {
	f := setupTestService(t)
	f.sink.err = errors.New("sink down")
	ctx := context.Background()

	item, err := f.svc.CreateItem(ctx, createRequest(64))
	require.NoError(t, err)
	_, err = f.svc.RemoveItem(ctx, item.ID)
	require.NoError(t, err)
}

func TestOpenImage(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()

	item, err := f.svc.CreateItem(ctx, createRequest(300))
	require.NoError(t, err)

	rc, meta, err := f.svc.OpenImage(ctx, item.ImageRef)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Len(t, data, 300)
	assert.Equal(t, "image/png", meta.ContentType)

	_, _, err = f.svc.OpenImage(ctx, "missing.png")
	assert.Equal(t, simplecatalog.KindNotFound, simplecatalog.KindOf(err))
}

func TestEndToEnd_VegPizza(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()

	att := pngAttachment(2048)
	item, err := f.svc.CreateItem(ctx, simplecatalog.CreateItemRequest{
		Fields: simplecatalog.ItemFields{
			Name:        str(" Veg Pizza "),
			Description: str("Cheesy delight"),
			Price:       str("12.5"),
			Category:    str("Pasta "),
		},
		Image: &att,
	})
	require.NoError(t, err)
	assert.Equal(t, "Veg Pizza", item.Name)
	assert.Equal(t, "Cheesy delight", item.Description)
	assert.Equal(t, "12.5", item.Price.String())
	assert.Equal(t, "Pasta", item.Category)
	assert.NotEmpty(t, item.ImageRef)

	items, err := f.svc.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, item.ID, items[0].ID)

	_, err = f.svc.RemoveItem(ctx, item.ID)
	require.NoError(t, err)

	items, err = f.svc.ListItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}
