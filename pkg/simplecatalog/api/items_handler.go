package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/simple-catalog/pkg/simplecatalog"
	"golang.org/x/time/rate"
)

const (
	// formSlack is the body allowance on top of the image limit for the
	// text fields and multipart framing.
	formSlack = 1 << 20

	// maxFormMemory is the part of a multipart body kept in memory; the
	// rest spills to temp files removed after each request.
	maxFormMemory = 1 << 20

	maxRemoveBodyBytes = 64 << 10
)

// ItemHandler handles catalog item API endpoints
type ItemHandler struct {
	service       simplecatalog.Service
	maxImageBytes int64
	createLimiter *rate.Limiter
	imageBaseURL  string
	logger        *slog.Logger
}

// HandlerOption configures an ItemHandler
type HandlerOption func(*ItemHandler)

// WithMaxImageBytes sets the image limit used to bound create request bodies
func WithMaxImageBytes(n int64) HandlerOption {
	return func(h *ItemHandler) {
		if n > 0 {
			h.maxImageBytes = n
		}
	}
}

// WithCreateRateLimit allows at most perMinute item creations per minute
// across the process. Zero disables the limit.
func WithCreateRateLimit(perMinute int) HandlerOption {
	return func(h *ItemHandler) {
		if perMinute <= 0 {
			h.createLimiter = nil
			return
		}
		h.createLimiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60), perMinute)
	}
}

// WithImageBaseURL sets the URL prefix used to build image_url in responses
func WithImageBaseURL(base string) HandlerOption {
	return func(h *ItemHandler) {
		h.imageBaseURL = strings.TrimSuffix(base, "/")
	}
}

// WithHandlerLogger sets the logger used for request failures
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *ItemHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewItemHandler creates a new item handler
func NewItemHandler(service simplecatalog.Service, opts ...HandlerOption) *ItemHandler {
	h := &ItemHandler{
		service:       service,
		maxImageBytes: simplecatalog.DefaultMaxImageSize,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the router for item endpoints
func (h *ItemHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListItems)
	r.Get("/list", h.ListItems)

	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(h.createLimiter))
		r.Post("/", h.CreateItem)
		r.Post("/add", h.CreateItem)
	})

	r.With(RequestSizeLimitMiddleware(maxRemoveBodyBytes)).Post("/remove", h.RemoveItem)
	r.Get("/images/*", h.GetImage)

	r.Get("/{id}", h.GetItem)
	r.Delete("/{id}", h.RemoveItem)
	return r
}

// CreateItem creates an item from a multipart form with fields name,
// description, price, category and the file part image.
func (h *ItemHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxImageBytes+formSlack)

	err := r.ParseMultipartForm(maxFormMemory)
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		if isBodyTooLarge(err) {
			h.writeError(w, r, simplecatalog.ErrSizeExceeded, "")
			return
		}
		h.fail(w, r, http.StatusBadRequest, simplecatalog.KindValidationFailed, "Malformed form data")
		return
	}

	req := simplecatalog.CreateItemRequest{
		Fields: simplecatalog.ItemFields{
			Name:        formField(r.PostForm, "name"),
			Description: formField(r.PostForm, "description"),
			Price:       formField(r.PostForm, "price"),
			Category:    formField(r.PostForm, "category"),
		},
	}

	if r.MultipartForm != nil {
		file, header, err := r.FormFile("image")
		switch {
		case err == nil:
			defer file.Close()
			req.Image = &simplecatalog.Attachment{
				Reader:      file,
				Size:        header.Size,
				ContentType: header.Header.Get("Content-Type"),
				FileName:    header.Filename,
			}
		case !errors.Is(err, http.ErrMissingFile):
			h.logger.Error("Failed to open uploaded image", "err", err)
			h.fail(w, r, http.StatusBadRequest, simplecatalog.KindMissingImage, "Image could not be read")
			return
		}
	}

	item, err := h.service.CreateItem(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err, "")
		return
	}

	h.writeJSON(w, r, http.StatusCreated, Response{
		Success: true,
		Message: "Item added successfully",
		Data:    h.itemResponse(item),
	})
}

// ListItems returns every item, newest first
func (h *ItemHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListItems(r.Context())
	if err != nil {
		h.writeError(w, r, err, "")
		return
	}

	data := make([]ItemResponse, 0, len(items))
	for _, item := range items {
		data = append(data, h.itemResponse(item))
	}
	h.writeJSON(w, r, http.StatusOK, Response{
		Success: true,
		Message: strconv.Itoa(len(data)) + " items",
		Data:    data,
	})
}

// GetItem returns a single item
func (h *ItemHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err, strings.TrimSpace(id))
		return
	}
	h.writeJSON(w, r, http.StatusOK, Response{Success: true, Data: h.itemResponse(item)})
}

type removeRequest struct {
	ID string `json:"id"`
}

// RemoveItem deletes an item and then its image. The id comes from the URL
// on DELETE and from a JSON or form body on POST /remove.
func (h *ItemHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if r.Method == http.MethodPost {
		var err error
		id, err = removeID(r)
		if err != nil {
			h.fail(w, r, http.StatusBadRequest, simplecatalog.KindInvalidIdentifier, "Malformed request body")
			return
		}
	}

	result, err := h.service.RemoveItem(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err, strings.TrimSpace(id))
		return
	}

	resp := Response{
		Success: true,
		Message: "Item removed successfully",
		Data:    h.itemResponse(result.Item),
	}
	if result.CleanupErr != nil {
		resp.Warnings = []string{"Item removed but its image could not be deleted"}
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}

// GetImage streams a stored image. The name may contain slashes.
func (h *ItemHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	rc, meta, err := h.service.OpenImage(r.Context(), name)
	if err != nil {
		h.writeError(w, r, err, "")
		return
	}
	defer rc.Close()

	contentType := meta.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if meta.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("Failed to stream image", "blob", name, "err", err)
	}
}

func removeID(r *http.Request) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req removeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return req.ID, nil
	}
	if err := r.ParseForm(); err != nil {
		return "", err
	}
	return r.PostForm.Get("id"), nil
}

// isBodyTooLarge reports whether err came from a tripped MaxBytesReader.
// mime/multipart does not always wrap the reader error.
func isBodyTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}

// formField returns nil when key is absent so absence stays distinct from
// an empty value.
func formField(form url.Values, key string) *string {
	values, ok := form[key]
	if !ok || len(values) == 0 {
		return nil
	}
	v := values[0]
	return &v
}
