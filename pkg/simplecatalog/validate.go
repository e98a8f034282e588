package simplecatalog

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Field bounds. Lengths are counted in runes after trimming.
const (
	NameMinLength        = 2
	NameMaxLength        = 100
	DescriptionMinLength = 5
	DescriptionMaxLength = 500
)

// PriceUpperBound is the exclusive upper bound for item prices.
var PriceUpperBound = decimal.NewFromInt(999999)

// ValidateFields checks every field and collects every violation in field
// declaration order: name, description, price, category. Within a single
// field only the first failing rule is reported.
func ValidateFields(f ItemFields) ValidationResult {
	var errs []string

	if msg := checkLength("Name", f.Name, NameMinLength, NameMaxLength); msg != "" {
		errs = append(errs, msg)
	}
	if msg := checkLength("Description", f.Description, DescriptionMinLength, DescriptionMaxLength); msg != "" {
		errs = append(errs, msg)
	}
	if _, msg := parsePrice(f.Price); msg != "" {
		errs = append(errs, msg)
	}
	if trimmed(f.Category) == "" {
		errs = append(errs, "Category is required")
	}

	return ValidationResult{
		Valid:  len(errs) == 0,
		Errors: errs,
	}
}

// Normalize validates the fields and returns the trimmed record values.
// ImageRef is left empty for the caller to bind.
func (f ItemFields) Normalize() (NewItem, error) {
	result := ValidateFields(f)
	if !result.Valid {
		return NewItem{}, &ValidationError{Errors: result.Errors}
	}
	price, _ := parsePrice(f.Price)
	return NewItem{
		Name:        trimmed(f.Name),
		Description: trimmed(f.Description),
		Price:       price,
		Category:    trimmed(f.Category),
	}, nil
}

func checkLength(field string, value *string, min, max int) string {
	v := trimmed(value)
	if v == "" {
		return field + " is required"
	}
	n := utf8.RuneCountInString(v)
	switch {
	case n < min:
		return fmt.Sprintf("%s must be at least %d characters long", field, min)
	case n > max:
		return fmt.Sprintf("%s must not exceed %d characters", field, max)
	}
	return ""
}

func parsePrice(value *string) (decimal.Decimal, string) {
	v := trimmed(value)
	if v == "" {
		return decimal.Zero, "Price is required"
	}
	price, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, "Price must be a valid number"
	}
	if !price.IsPositive() {
		return decimal.Zero, "Price must be greater than 0"
	}
	if price.GreaterThanOrEqual(PriceUpperBound) {
		return decimal.Zero, "Price is too high"
	}
	return price, ""
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
