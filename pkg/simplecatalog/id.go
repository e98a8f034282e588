package simplecatalog

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// IDLength is the number of hex characters in an item identifier.
const IDLength = 24

var idPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

// NewID returns a fresh item identifier: the first 12 bytes of a UUIDv7,
// hex encoded. Identifiers are time ordered and never reused.
func NewID() (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate item id: %w", err)
	}
	return hex.EncodeToString(u[:IDLength/2]), nil
}

// IsValidID reports whether raw has the identifier format.
func IsValidID(raw string) bool {
	return idPattern.MatchString(raw)
}

// NormalizeID checks raw against the identifier format and returns its
// canonical lower-case form.
func NormalizeID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: ID is required", ErrInvalidIdentifier)
	}
	if !IsValidID(raw) {
		return "", fmt.Errorf("%w: Invalid ID format", ErrInvalidIdentifier)
	}
	return strings.ToLower(raw), nil
}
