package simplecatalog

import (
	"context"
	"io"
)

// Service defines the main interface for the simple-catalog library
type Service interface {
	// Item lifecycle operations
	CreateItem(ctx context.Context, req CreateItemRequest) (*CatalogItem, error)
	ListItems(ctx context.Context) ([]*CatalogItem, error)
	GetItem(ctx context.Context, id string) (*CatalogItem, error)
	RemoveItem(ctx context.Context, id string) (*RemoveResult, error)

	// Image access
	OpenImage(ctx context.Context, name string) (io.ReadCloser, *ObjectMeta, error)
}
