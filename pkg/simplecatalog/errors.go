package simplecatalog

import (
	"errors"
	"fmt"
	"strings"
)

// Error types
var (
	// ErrMissingImage indicates a create request without an image attachment
	ErrMissingImage = errors.New("image is required")

	// ErrValidationFailed indicates one or more item fields are invalid
	ErrValidationFailed = errors.New("validation failed")

	// ErrUnsupportedType indicates the attachment is not an allowed image format
	ErrUnsupportedType = errors.New("only image files are allowed (jpeg, jpg, png, gif, webp)")

	// ErrSizeExceeded indicates the attachment is larger than the configured limit
	ErrSizeExceeded = errors.New("image exceeds maximum size")

	// ErrInvalidIdentifier indicates a malformed item identifier
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrItemNotFound indicates an item was not found
	ErrItemNotFound = errors.New("item not found")

	// ErrPersistence indicates the record store failed
	ErrPersistence = errors.New("persistence error")

	// ErrCompensationFailed indicates a best-effort cleanup could not be completed
	ErrCompensationFailed = errors.New("compensation failed")

	// ErrBlobNotFound indicates a blob does not exist in the backend
	ErrBlobNotFound = errors.New("blob not found")

	// ErrInvalidBlobName indicates a blob name that cannot address a stored blob
	ErrInvalidBlobName = errors.New("invalid blob name")
)

// ErrorKind names a failure category for transport-level mapping.
type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindMissingImage       ErrorKind = "MissingImage"
	KindValidationFailed   ErrorKind = "ValidationFailed"
	KindUnsupportedType    ErrorKind = "UnsupportedType"
	KindSizeExceeded       ErrorKind = "SizeExceeded"
	KindInvalidIdentifier  ErrorKind = "InvalidIdentifier"
	KindNotFound           ErrorKind = "NotFound"
	KindPersistenceError   ErrorKind = "PersistenceError"
	KindCompensationFailed ErrorKind = "CompensationFailed"
)

// kindPrecedence lists primary kinds before CompensationFailed so a joined
// compensation error never hides the primary failure.
var kindPrecedence = []struct {
	err  error
	kind ErrorKind
}{
	{ErrMissingImage, KindMissingImage},
	{ErrValidationFailed, KindValidationFailed},
	{ErrUnsupportedType, KindUnsupportedType},
	{ErrSizeExceeded, KindSizeExceeded},
	{ErrInvalidIdentifier, KindInvalidIdentifier},
	{ErrItemNotFound, KindNotFound},
	{ErrPersistence, KindPersistenceError},
	{ErrBlobNotFound, KindNotFound},
	{ErrInvalidBlobName, KindNotFound},
	{ErrCompensationFailed, KindCompensationFailed},
}

// KindOf returns the primary ErrorKind carried by err. Errors that match no
// known kind are reported as PersistenceError.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, p := range kindPrecedence {
		if errors.Is(err, p.err) {
			return p.kind
		}
	}
	return KindPersistenceError
}

// ValidationError carries every field violation of a rejected request
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidationFailed, strings.Join(e.Errors, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// ValidationErrors extracts the field violations from err, if any.
func ValidationErrors(err error) []string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Errors
	}
	return nil
}

// CompensationError represents a failed corrective blob deletion
type CompensationError struct {
	Op       string
	BlobName string
	Err      error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensation for %s failed to delete blob %s: %v", e.Op, e.BlobName, e.Err)
}

func (e *CompensationError) Is(target error) bool {
	return target == ErrCompensationFailed
}

func (e *CompensationError) Unwrap() error {
	return e.Err
}

// ItemError represents an error related to item operations
type ItemError struct {
	ID  string
	Op  string
	Err error
}

func (e *ItemError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("item operation %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("item operation %s failed for item %s: %v", e.Op, e.ID, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to storage operations
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	if e.Backend == "" {
		return fmt.Sprintf("storage operation %s failed for key %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// persistenceError tags err as ErrPersistence unless it already carries a
// more specific kind.
func persistenceError(err error) error {
	if err == nil || errors.Is(err, ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}
