package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/tendant/simple-catalog/pkg/simplecatalog"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements simplecatalog.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS catalog_item (
	id          CHAR(24) PRIMARY KEY,
	name        VARCHAR(100) NOT NULL,
	description VARCHAR(500) NOT NULL,
	price       NUMERIC NOT NULL CHECK (price > 0),
	category    TEXT NOT NULL,
	image_ref   TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS catalog_item_created_at_idx ON catalog_item (created_at DESC);
`

// EnsureSchema creates the catalog_item table in the session search_path
// when it does not exist yet.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaDDL); err != nil {
		return r.handlePostgresError("ensure schema", err)
	}
	return nil
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return simplecatalog.ErrItemNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: item already exists", simplecatalog.ErrPersistence)
		case "23502": // not_null_violation
			return fmt.Errorf("%w: required field %s is missing", simplecatalog.ErrPersistence, pgErr.ColumnName)
		case "23514": // check_violation
			return fmt.Errorf("%w: constraint %s violated", simplecatalog.ErrPersistence, pgErr.ConstraintName)
		case "42P01": // undefined_table
			return fmt.Errorf("%w: table does not exist - database migration required", simplecatalog.ErrPersistence)
		default:
			return fmt.Errorf("%w: database error in %s: %s (code: %s)", simplecatalog.ErrPersistence, operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("%w: database error in %s: %w", simplecatalog.ErrPersistence, operation, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *Repository) CreateItem(ctx context.Context, item simplecatalog.NewItem) (*simplecatalog.CatalogItem, error) {
	query := `
		INSERT INTO catalog_item (id, name, description, price, category, image_ref, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)`

	// A colliding id is retried with a fresh one; anything else is final.
	const attempts = 3
	var lastErr error
	for i := 0; i < attempts; i++ {
		id, err := simplecatalog.NewID()
		if err != nil {
			return nil, err
		}
		created := &simplecatalog.CatalogItem{
			ID:          id,
			Name:        item.Name,
			Description: item.Description,
			Price:       item.Price,
			Category:    item.Category,
			ImageRef:    item.ImageRef,
			CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
		}

		_, err = r.db.Exec(ctx, query,
			created.ID, created.Name, created.Description, created.Price.String(),
			created.Category, created.ImageRef, created.CreatedAt)
		if err == nil {
			return created, nil
		}
		if !isUniqueViolation(err) {
			return nil, r.handlePostgresError("create item", err)
		}
		lastErr = err
	}
	return nil, r.handlePostgresError("create item", lastErr)
}

func (r *Repository) ListItems(ctx context.Context) ([]*simplecatalog.CatalogItem, error) {
	query := `
		SELECT id, name, description, price::text, category, image_ref, created_at
		FROM catalog_item ORDER BY created_at DESC, id DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, r.handlePostgresError("list items", err)
	}
	defer rows.Close()

	items := make([]*simplecatalog.CatalogItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, r.handlePostgresError("scan item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list items", err)
	}

	return items, nil
}

func (r *Repository) GetItem(ctx context.Context, id string) (*simplecatalog.CatalogItem, error) {
	query := `
		SELECT id, name, description, price::text, category, image_ref, created_at
		FROM catalog_item WHERE id = $1`

	item, err := scanItem(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, r.handlePostgresError("get item", err)
	}
	return item, nil
}

func (r *Repository) DeleteItem(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM catalog_item WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete item", err)
	}
	if tag.RowsAffected() == 0 {
		return simplecatalog.ErrItemNotFound
	}
	return nil
}

func scanItem(row pgx.Row) (*simplecatalog.CatalogItem, error) {
	var item simplecatalog.CatalogItem
	var price string
	if err := row.Scan(&item.ID, &item.Name, &item.Description, &price,
		&item.Category, &item.ImageRef, &item.CreatedAt); err != nil {
		return nil, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("invalid stored price %q: %w", price, err)
	}
	item.Price = p
	item.CreatedAt = item.CreatedAt.UTC()
	return &item, nil
}
