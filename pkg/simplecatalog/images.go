package simplecatalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/tendant/simple-catalog/pkg/simplecatalog/objectkey"
)

// DefaultMaxImageSize is the upload limit applied when none is configured (5 MiB).
const DefaultMaxImageSize int64 = 5 * 1024 * 1024

// ImagePolicy controls which attachments an ImageStore accepts.
type ImagePolicy struct {
	MaxSize           int64
	AllowedExtensions []string // lower-case, with leading dot
	AllowedTypes      []string // lower-case media types
	// SniffContent rejects payloads whose leading bytes are not a known image format.
	SniffContent bool
}

// DefaultImagePolicy returns the jpeg/png/gif/webp allow-list with a 5 MiB limit.
func DefaultImagePolicy() ImagePolicy {
	return ImagePolicy{
		MaxSize:           DefaultMaxImageSize,
		AllowedExtensions: []string{".jpeg", ".jpg", ".png", ".gif", ".webp"},
		AllowedTypes:      []string{"image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp"},
	}
}

// ImageStore is the blob adapter used by the service. It enforces the image
// policy, generates blob names and makes deletes idempotent. It knows nothing
// about catalog items.
type ImageStore struct {
	backend BlobStore
	policy  ImagePolicy
	keys    objectkey.Generator
	logger  *slog.Logger
}

// ImageStoreOption configures an ImageStore
type ImageStoreOption func(*ImageStore)

// WithImagePolicy replaces the default image policy
func WithImagePolicy(policy ImagePolicy) ImageStoreOption {
	return func(s *ImageStore) {
		s.policy = policy
	}
}

// WithKeyGenerator sets the blob name generator
func WithKeyGenerator(gen objectkey.Generator) ImageStoreOption {
	return func(s *ImageStore) {
		s.keys = gen
	}
}

// WithImageLogger sets the logger used for partial-write cleanup messages
func WithImageLogger(logger *slog.Logger) ImageStoreOption {
	return func(s *ImageStore) {
		s.logger = logger
	}
}

// NewImageStore wraps a raw blob backend.
func NewImageStore(backend BlobStore, opts ...ImageStoreOption) *ImageStore {
	s := &ImageStore{
		backend: backend,
		policy:  DefaultImagePolicy(),
		keys:    objectkey.NewRecommendedGenerator(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.policy.MaxSize <= 0 {
		s.policy.MaxSize = DefaultMaxImageSize
	}
	return s
}

// Policy returns the active image policy.
func (s *ImageStore) Policy() ImagePolicy {
	return s.policy
}

// Store checks the attachment against the policy and writes it under a
// freshly generated name. Nothing is written when a check fails.
func (s *ImageStore) Store(ctx context.Context, att Attachment) (*Blob, error) {
	if att.Reader == nil {
		return nil, ErrMissingImage
	}

	contentType, err := s.checkType(att)
	if err != nil {
		return nil, err
	}

	if att.Size > s.policy.MaxSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrSizeExceeded, att.Size, s.policy.MaxSize)
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(att.Reader, s.policy.MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image payload: %w", err)
	}
	if n > s.policy.MaxSize {
		return nil, fmt.Errorf("%w: payload exceeds limit of %d bytes", ErrSizeExceeded, s.policy.MaxSize)
	}

	if s.policy.SniffContent {
		detected := http.DetectContentType(buf.Bytes())
		if !contains(s.policy.AllowedTypes, detected) {
			return nil, fmt.Errorf("%w: content detected as %s", ErrUnsupportedType, detected)
		}
	}

	name := s.keys.GenerateKey(&objectkey.KeyMetadata{
		FileName:    att.FileName,
		ContentType: contentType,
		Now:         time.Now(),
	})
	if !objectkey.IsSafeKey(name) {
		return nil, fmt.Errorf("%w: generated name %q", ErrInvalidBlobName, name)
	}

	err = s.backend.UploadWithParams(ctx, &buf, UploadParams{
		ObjectKey: name,
		MimeType:  contentType,
		Size:      n,
	})
	if err != nil {
		s.discardPartial(ctx, name)
		return nil, persistenceError(&StorageError{Key: name, Op: "store", Err: err})
	}

	return &Blob{Name: name, Size: n, ContentType: contentType}, nil
}

// Delete removes the named blob. A missing blob is success.
func (s *ImageStore) Delete(ctx context.Context, name string) error {
	if !objectkey.IsSafeKey(name) {
		return fmt.Errorf("%w: %q", ErrInvalidBlobName, name)
	}
	err := s.backend.Delete(ctx, name)
	if err != nil && !errors.Is(err, ErrBlobNotFound) {
		return &StorageError{Key: name, Op: "delete", Err: err}
	}
	return nil
}

// Exists reports whether the named blob is present.
func (s *ImageStore) Exists(ctx context.Context, name string) (bool, error) {
	if !objectkey.IsSafeKey(name) {
		return false, nil
	}
	_, err := s.backend.GetObjectMeta(ctx, name)
	if errors.Is(err, ErrBlobNotFound) {
		return false, nil
	}
	if err != nil {
		return false, &StorageError{Key: name, Op: "stat", Err: err}
	}
	return true, nil
}

// Open returns a reader for the named blob and its metadata.
func (s *ImageStore) Open(ctx context.Context, name string) (io.ReadCloser, *ObjectMeta, error) {
	if !objectkey.IsSafeKey(name) {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidBlobName, name)
	}
	meta, err := s.backend.GetObjectMeta(ctx, name)
	if err != nil {
		return nil, nil, s.readError(name, "stat", err)
	}
	rc, err := s.backend.Download(ctx, name)
	if err != nil {
		return nil, nil, s.readError(name, "download", err)
	}
	return rc, meta, nil
}

func (s *ImageStore) readError(name, op string, err error) error {
	if errors.Is(err, ErrBlobNotFound) {
		return err
	}
	return persistenceError(&StorageError{Key: name, Op: op, Err: err})
}

// checkType requires both the file extension and the declared media type
// to be in the allow-list and returns the normalized media type.
func (s *ImageStore) checkType(att Attachment) (string, error) {
	ext := strings.ToLower(filepath.Ext(att.FileName))
	if !contains(s.policy.AllowedExtensions, ext) {
		return "", fmt.Errorf("%w: extension %q", ErrUnsupportedType, ext)
	}
	mediaType, _, err := mime.ParseMediaType(att.ContentType)
	if err != nil {
		return "", fmt.Errorf("%w: content type %q", ErrUnsupportedType, att.ContentType)
	}
	mediaType = strings.ToLower(mediaType)
	if !contains(s.policy.AllowedTypes, mediaType) {
		return "", fmt.Errorf("%w: content type %q", ErrUnsupportedType, mediaType)
	}
	return mediaType, nil
}

// discardPartial removes whatever a failed upload may have left behind.
func (s *ImageStore) discardPartial(ctx context.Context, name string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.Delete(ctx, name); err != nil {
		s.logger.Warn("failed to remove partial upload", "blob", name, "err", err)
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
