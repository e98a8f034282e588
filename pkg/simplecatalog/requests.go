package simplecatalog

// CreateItemRequest contains parameters for creating a catalog item.
// Image is required; a nil Image fails with ErrMissingImage.
type CreateItemRequest struct {
	Fields ItemFields
	Image  *Attachment
}
