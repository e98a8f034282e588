package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/simple-catalog/pkg/simplecatalog"
)

// Response is the JSON envelope returned by every item endpoint
type Response struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message,omitempty"`
	Data     any      `json:"data,omitempty"`
	Kind     string   `json:"kind,omitempty"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ItemResponse is the response body for a catalog item
type ItemResponse struct {
	*simplecatalog.CatalogItem
	ImageURL string `json:"image_url,omitempty"`
}

// StatusFor maps an error kind to its HTTP status code
func StatusFor(kind simplecatalog.ErrorKind) int {
	switch kind {
	case simplecatalog.KindNone:
		return http.StatusOK
	case simplecatalog.KindMissingImage,
		simplecatalog.KindValidationFailed,
		simplecatalog.KindInvalidIdentifier:
		return http.StatusBadRequest
	case simplecatalog.KindUnsupportedType:
		return http.StatusUnsupportedMediaType
	case simplecatalog.KindSizeExceeded:
		return http.StatusRequestEntityTooLarge
	case simplecatalog.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *ItemHandler) itemResponse(item *simplecatalog.CatalogItem) ItemResponse {
	resp := ItemResponse{CatalogItem: item}
	if h.imageBaseURL != "" && item.ImageRef != "" {
		resp.ImageURL = h.imageBaseURL + "/" + item.ImageRef
	}
	return resp
}

func (h *ItemHandler) writeJSON(w http.ResponseWriter, r *http.Request, status int, resp Response) {
	render.Status(r, status)
	render.JSON(w, r, resp)
}

// writeError renders err with the status of its primary kind. Internal
// details are logged, never returned to the client.
func (h *ItemHandler) writeError(w http.ResponseWriter, r *http.Request, err error, rawID string) {
	kind := simplecatalog.KindOf(err)
	status := StatusFor(kind)

	resp := Response{
		Success: false,
		Kind:    string(kind),
		Message: h.messageFor(kind, rawID),
		Errors:  simplecatalog.ValidationErrors(err),
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "kind", kind, "err", err)
	} else {
		h.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "kind", kind, "err", err)
	}
	h.writeJSON(w, r, status, resp)
}

func (h *ItemHandler) messageFor(kind simplecatalog.ErrorKind, rawID string) string {
	switch kind {
	case simplecatalog.KindMissingImage:
		return "Image is required"
	case simplecatalog.KindValidationFailed:
		return "Validation failed"
	case simplecatalog.KindUnsupportedType:
		return "Only image files are allowed (jpeg, jpg, png, gif, webp)"
	case simplecatalog.KindSizeExceeded:
		return fmt.Sprintf("Image exceeds maximum size of %d bytes", h.maxImageBytes)
	case simplecatalog.KindInvalidIdentifier:
		if rawID == "" {
			return "ID is required"
		}
		return "Invalid ID format"
	case simplecatalog.KindNotFound:
		return "Item not found"
	default:
		return "Internal server error"
	}
}

func (h *ItemHandler) fail(w http.ResponseWriter, r *http.Request, status int, kind simplecatalog.ErrorKind, message string) {
	h.writeJSON(w, r, status, Response{Success: false, Kind: string(kind), Message: message})
}
