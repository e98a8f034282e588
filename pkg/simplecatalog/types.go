package simplecatalog

import (
	"io"
	"time"

	"github.com/shopspring/decimal"
)

// CatalogItem is a persisted catalog record bound to one image blob.
type CatalogItem struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	ImageRef    string          `json:"image"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewItem carries the validated, trimmed fields of an item that has not been
// persisted yet. The Repository assigns ID and CreatedAt.
type NewItem struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	ImageRef    string
}

// ItemFields holds the raw client-supplied attributes. A nil pointer means the
// field was absent from the request, which is distinct from an empty string.
type ItemFields struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Price       *string `json:"price,omitempty"`
	Category    *string `json:"category,omitempty"`
}

// Attachment describes an incoming binary payload.
type Attachment struct {
	Reader      io.Reader
	Size        int64 // declared size, -1 when unknown
	ContentType string
	FileName    string
}

// Blob describes an image stored by the ImageStore.
type Blob struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// RemoveResult reports the outcome of a successful removal.
//
// BlobRemoved reports whether an image blob was found and deleted; it is
// false when the blob was already absent. CleanupErr is set when the record
// was deleted but its image blob could not be removed. The removal itself
// still counts as successful.
type RemoveResult struct {
	Item        *CatalogItem
	BlobRemoved bool
	CleanupErr  error
}

// ValidationResult is the aggregated outcome of ValidateFields.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}
