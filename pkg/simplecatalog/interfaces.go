package simplecatalog

import (
	"context"
	"io"
	"time"
)

// BlobStore defines the interface for raw byte storage backends.
// Implementations know nothing about catalog items.
type BlobStore interface {
	// Upload uploads content directly
	Upload(ctx context.Context, objectKey string, reader io.Reader) error

	// UploadWithParams uploads content with additional parameters
	UploadWithParams(ctx context.Context, reader io.Reader, params UploadParams) error

	// Download downloads content directly. Returns ErrBlobNotFound when missing.
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// Delete deletes content. Returns ErrBlobNotFound when missing.
	Delete(ctx context.Context, objectKey string) error

	// GetObjectMeta retrieves metadata for an object. Returns ErrBlobNotFound when missing.
	GetObjectMeta(ctx context.Context, objectKey string) (*ObjectMeta, error)
}

// Repository defines the interface for catalog record persistence.
//
// Identifiers passed to GetItem and DeleteItem are expected to be well formed;
// callers validate them with NormalizeID first.
type Repository interface {
	CreateItem(ctx context.Context, item NewItem) (*CatalogItem, error)
	ListItems(ctx context.Context) ([]*CatalogItem, error)
	GetItem(ctx context.Context, id string) (*CatalogItem, error)
	DeleteItem(ctx context.Context, id string) error
}

// EventSink defines the interface for lifecycle notifications
type EventSink interface {
	// ItemCreated is fired after an item and its image are both persisted
	ItemCreated(ctx context.Context, item *CatalogItem) error

	// ItemRemoved is fired after an item record is deleted
	ItemRemoved(ctx context.Context, item *CatalogItem) error
}

// ObjectMeta contains metadata about an object in storage
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
	ETag        string
	Metadata    map[string]string
}

// UploadParams contains parameters for uploading an object
type UploadParams struct {
	ObjectKey string
	MimeType  string
	Size      int64
}
