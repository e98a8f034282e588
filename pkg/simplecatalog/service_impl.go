package simplecatalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultCompensationTimeout bounds a compensating blob delete.
const DefaultCompensationTimeout = 10 * time.Second

// service implements the Service interface
type service struct {
	repository          Repository
	images              *ImageStore
	eventSink           EventSink
	logger              *slog.Logger
	tracer              trace.Tracer
	compensationTimeout time.Duration
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithImageStore sets a fully configured image store
func WithImageStore(store *ImageStore) Option {
	return func(s *service) {
		s.images = store
	}
}

// WithBlobStore wraps a raw backend in an ImageStore with the default policy
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.images = NewImageStore(store)
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithLogger sets the structured logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithTracer overrides the global OpenTelemetry tracer
func WithTracer(tracer trace.Tracer) Option {
	return func(s *service) {
		s.tracer = tracer
	}
}

// WithCompensationTimeout bounds each compensating blob delete
func WithCompensationTimeout(d time.Duration) Option {
	return func(s *service) {
		s.compensationTimeout = d
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		eventSink:           NewNoopEventSink(),
		compensationTimeout: DefaultCompensationTimeout,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.images == nil {
		return nil, fmt.Errorf("image store is required")
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("github.com/tendant/simple-catalog/pkg/simplecatalog")
	}
	if s.eventSink == nil {
		s.eventSink = NewNoopEventSink()
	}
	if s.compensationTimeout <= 0 {
		s.compensationTimeout = DefaultCompensationTimeout
	}

	return s, nil
}

func (s *service) CreateItem(ctx context.Context, req CreateItemRequest) (*CatalogItem, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.create")
	defer span.End()

	item, err := s.createItem(ctx, span, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
		return nil, err
	}
	span.SetAttributes(attribute.String("item.id", item.ID))
	return item, nil
}

func (s *service) createItem(ctx context.Context, span trace.Span, req CreateItemRequest) (*CatalogItem, error) {
	if req.Image == nil || req.Image.Reader == nil {
		return nil, ErrMissingImage
	}

	fields, err := req.Fields.Normalize()
	if err != nil {
		return nil, err
	}

	blob, err := s.images.Store(ctx, *req.Image)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("blob.name", blob.Name))
	span.AddEvent("blob stored", trace.WithAttributes(attribute.Int64("blob.size", blob.Size)))

	fields.ImageRef = blob.Name
	item, err := s.repository.CreateItem(ctx, fields)
	if err != nil {
		primary := &ItemError{Op: "create", Err: persistenceError(err)}
		span.SetAttributes(attribute.Bool("compensation.attempted", true))

		if cerr := s.compensate(ctx, "create", blob.Name); cerr != nil {
			span.SetAttributes(attribute.Bool("compensation.failed", true))
			s.logger.ErrorContext(ctx, "failed to roll back image after record create failure",
				"blob", blob.Name, "err", cerr, "cause", err)
			return nil, errors.Join(primary, cerr)
		}
		s.logger.WarnContext(ctx, "rolled back image after record create failure", "blob", blob.Name, "err", err)
		return nil, primary
	}

	if err := s.eventSink.ItemCreated(ctx, item); err != nil {
		s.logger.WarnContext(ctx, "event sink failed", "event", "item_created", "item_id", item.ID, "err", err)
	}

	return item, nil
}

func (s *service) ListItems(ctx context.Context) ([]*CatalogItem, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.list")
	defer span.End()

	items, err := s.repository.ListItems(ctx)
	if err != nil {
		err = persistenceError(&ItemError{Op: "list", Err: err})
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindPersistenceError))
		return nil, err
	}
	span.SetAttributes(attribute.Int("item.count", len(items)))
	return items, nil
}

func (s *service) GetItem(ctx context.Context, id string) (*CatalogItem, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.get")
	defer span.End()

	item, err := s.getItem(ctx, span, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
		return nil, err
	}
	return item, nil
}

func (s *service) getItem(ctx context.Context, span trace.Span, rawID string) (*CatalogItem, error) {
	id, err := NormalizeID(rawID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("item.id", id))

	item, err := s.repository.GetItem(ctx, id)
	if err != nil {
		return nil, s.lookupError(id, "get", err)
	}
	return item, nil
}

func (s *service) RemoveItem(ctx context.Context, id string) (*RemoveResult, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.remove")
	defer span.End()

	result, err := s.removeItem(ctx, span, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
		return nil, err
	}
	return result, nil
}

func (s *service) removeItem(ctx context.Context, span trace.Span, rawID string) (*RemoveResult, error) {
	id, err := NormalizeID(rawID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("item.id", id))

	item, err := s.repository.GetItem(ctx, id)
	if err != nil {
		return nil, s.lookupError(id, "remove", err)
	}

	if err := s.repository.DeleteItem(ctx, id); err != nil {
		return nil, s.lookupError(id, "remove", err)
	}

	result := &RemoveResult{Item: item}
	span.SetAttributes(attribute.String("blob.name", item.ImageRef))

	removed, cerr := s.removeImage(ctx, item.ImageRef)
	if cerr != nil {
		span.SetAttributes(attribute.Bool("compensation.failed", true))
		s.logger.WarnContext(ctx, "item removed but image cleanup failed",
			"item_id", id, "blob", item.ImageRef, "err", cerr)
		result.CleanupErr = cerr
	}
	result.BlobRemoved = removed

	if err := s.eventSink.ItemRemoved(ctx, item); err != nil {
		s.logger.WarnContext(ctx, "event sink failed", "event", "item_removed", "item_id", id, "err", err)
	}

	return result, nil
}

func (s *service) OpenImage(ctx context.Context, name string) (io.ReadCloser, *ObjectMeta, error) {
	return s.images.Open(ctx, name)
}

// compensate deletes a blob exactly once. It runs detached from the caller's
// cancellation so an aborted request still cleans up.
func (s *service) compensate(ctx context.Context, op, blobName string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.compensationTimeout)
	defer cancel()

	if err := s.images.Delete(ctx, blobName); err != nil {
		return &CompensationError{Op: op, BlobName: blobName, Err: err}
	}
	return nil
}

// removeImage deletes the image of a removed item and reports whether a
// blob was actually there to delete. An image that is already gone needs no
// cleanup. If the existence check itself fails the delete is still attempted.
func (s *service) removeImage(ctx context.Context, blobName string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.compensationTimeout)
	defer cancel()

	exists, err := s.images.Exists(ctx, blobName)
	if err == nil && !exists {
		s.logger.DebugContext(ctx, "image already absent", "blob", blobName)
		return false, nil
	}

	if err := s.images.Delete(ctx, blobName); err != nil {
		return false, &CompensationError{Op: "remove", BlobName: blobName, Err: err}
	}
	return true, nil
}

func (s *service) lookupError(id, op string, err error) error {
	if errors.Is(err, ErrItemNotFound) {
		return &ItemError{ID: id, Op: op, Err: err}
	}
	return &ItemError{ID: id, Op: op, Err: persistenceError(err)}
}
