package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tendant/simple-catalog/pkg/simplecatalog"
	_ "modernc.org/sqlite"
)

const (
	busyTimeoutMS   = 5000
	maxOpenConns    = 1
	maxIdleConns    = 1
	connMaxLifetime = 5 * time.Minute
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS catalog_item (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL,
	price       TEXT NOT NULL,
	category    TEXT NOT NULL,
	image_ref   TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS catalog_item_created_at_idx ON catalog_item (created_at DESC);
`

// Repository implements simplecatalog.Repository on an embedded SQLite file.
type Repository struct {
	db *sql.DB
}

// Open opens the SQLite database at path and bootstraps the schema.
// ":memory:" opens a private in-memory database.
func Open(path string) (*Repository, error) {
	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := configureDB(db, path == ":memory:"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Ping verifies the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func configureDB(db *sql.DB, inMemory bool) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeoutMS),
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	// A single connection serializes writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	if !inMemory {
		db.SetConnMaxLifetime(connMaxLifetime)
	}

	return nil
}

func sqliteDSN(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("db path is required")
	}
	if path == ":memory:" {
		return path, nil
	}
	u := url.URL{Scheme: "file", Path: path}
	return u.String(), nil
}

func (r *Repository) CreateItem(ctx context.Context, item simplecatalog.NewItem) (*simplecatalog.CatalogItem, error) {
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

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO catalog_item (id, name, description, price, category, image_ref, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		created.ID, created.Name, created.Description, created.Price.String(),
		created.Category, created.ImageRef, created.CreatedAt.UnixMicro())
	if err != nil {
		return nil, fmt.Errorf("%w: insert item: %w", simplecatalog.ErrPersistence, err)
	}
	return created, nil
}

func (r *Repository) ListItems(ctx context.Context) ([]*simplecatalog.CatalogItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, description, price, category, image_ref, created_at
		 FROM catalog_item ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("%w: list items: %w", simplecatalog.ErrPersistence, err)
	}
	defer rows.Close()

	items := make([]*simplecatalog.CatalogItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan item: %w", simplecatalog.ErrPersistence, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list items: %w", simplecatalog.ErrPersistence, err)
	}
	return items, nil
}

func (r *Repository) GetItem(ctx context.Context, id string) (*simplecatalog.CatalogItem, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, description, price, category, image_ref, created_at
		 FROM catalog_item WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, simplecatalog.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get item: %w", simplecatalog.ErrPersistence, err)
	}
	return item, nil
}

func (r *Repository) DeleteItem(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM catalog_item WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: delete item: %w", simplecatalog.ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: delete item: %w", simplecatalog.ErrPersistence, err)
	}
	if n == 0 {
		return simplecatalog.ErrItemNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (*simplecatalog.CatalogItem, error) {
	var item simplecatalog.CatalogItem
	var price string
	var createdAt int64
	if err := row.Scan(&item.ID, &item.Name, &item.Description, &price,
		&item.Category, &item.ImageRef, &createdAt); err != nil {
		return nil, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("invalid stored price %q: %w", price, err)
	}
	item.Price = p
	item.CreatedAt = time.UnixMicro(createdAt).UTC()
	return &item, nil
}
