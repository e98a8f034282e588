package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/tendant/simple-catalog/pkg/simplecatalog"
)

func TestHandlePostgresError(t *testing.T) {
	r := &Repository{}

	tests := []struct {
		name     string
		err      error
		wantIs   error
		contains string
	}{
		{"no rows", pgx.ErrNoRows, simplecatalog.ErrItemNotFound, "item not found"},
		{"wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), simplecatalog.ErrItemNotFound, "item not found"},
		{"unique", &pgconn.PgError{Code: "23505"}, simplecatalog.ErrPersistence, "already exists"},
		{"not null", &pgconn.PgError{Code: "23502", ColumnName: "name"}, simplecatalog.ErrPersistence, "name"},
		{"check", &pgconn.PgError{Code: "23514", ConstraintName: "catalog_item_price_check"}, simplecatalog.ErrPersistence, "price_check"},
		{"missing table", &pgconn.PgError{Code: "42P01"}, simplecatalog.ErrPersistence, "migration required"},
		{"other pg", &pgconn.PgError{Code: "XX000", Message: "boom"}, simplecatalog.ErrPersistence, "boom"},
		{"network", errors.New("connection reset"), simplecatalog.ErrPersistence, "connection reset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.handlePostgresError("op", tt.err)
			assert.ErrorIs(t, err, tt.wantIs)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23502"}))
	assert.False(t, isUniqueViolation(errors.New("x")))
}
