package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tendant/simple-catalog/pkg/simplecatalog"
)

const defaultPrefix = "catalog"

// Repository implements simplecatalog.Repository on Redis. Each item is a
// JSON string at <prefix>:item:<id>; <prefix>:items is a sorted set of ids
// scored by creation time in milliseconds.
type Repository struct {
	client *redis.Client
	prefix string
}

// Option configures a Repository
type Option func(*Repository)

// WithKeyPrefix namespaces every key written by the repository
func WithKeyPrefix(prefix string) Option {
	return func(r *Repository) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// New creates a new Redis repository
func New(client *redis.Client, opts ...Option) *Repository {
	r := &Repository{client: client, prefix: defaultPrefix}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewFromURL parses a redis:// URL and connects.
func NewFromURL(ctx context.Context, rawURL string, opts ...Option) (*Repository, error) {
	redisOpts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return New(client, opts...), nil
}

// Close closes the underlying client.
func (r *Repository) Close() error {
	return r.client.Close()
}

func (r *Repository) itemKey(id string) string {
	return r.prefix + ":item:" + id
}

func (r *Repository) indexKey() string {
	return r.prefix + ":items"
}

func (r *Repository) CreateItem(ctx context.Context, item simplecatalog.NewItem) (*simplecatalog.CatalogItem, error) {
	const attempts = 3
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
			CreatedAt:   time.Now().UTC(),
		}
		data, err := json.Marshal(created)
		if err != nil {
			return nil, fmt.Errorf("failed to encode item: %w", err)
		}

		ok, err := r.client.SetNX(ctx, r.itemKey(id), data, 0).Result()
		if err != nil {
			return nil, persistence("create item", err)
		}
		if !ok {
			continue
		}

		err = r.client.ZAdd(ctx, r.indexKey(), redis.Z{
			Score:  float64(created.CreatedAt.UnixMilli()),
			Member: id,
		}).Err()
		if err != nil {
			// roll the record back so it is not orphaned outside the index
			_ = r.client.Del(context.WithoutCancel(ctx), r.itemKey(id)).Err()
			return nil, persistence("index item", err)
		}
		return created, nil
	}
	return nil, fmt.Errorf("%w: could not allocate a unique item id", simplecatalog.ErrPersistence)
}

func (r *Repository) ListItems(ctx context.Context) ([]*simplecatalog.CatalogItem, error) {
	ids, err := r.client.ZRevRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, persistence("list items", err)
	}
	items := make([]*simplecatalog.CatalogItem, 0, len(ids))
	if len(ids) == 0 {
		return items, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.itemKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, persistence("list items", err)
	}

	for i, v := range values {
		// deleted between ZREVRANGE and MGET
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected value type for %s", simplecatalog.ErrPersistence, keys[i])
		}
		item, err := decodeItem([]byte(s))
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *Repository) GetItem(ctx context.Context, id string) (*simplecatalog.CatalogItem, error) {
	data, err := r.client.Get(ctx, r.itemKey(id)).Bytes()
	if err == redis.Nil {
		return nil, simplecatalog.ErrItemNotFound
	}
	if err != nil {
		return nil, persistence("get item", err)
	}
	return decodeItem(data)
}

// DeleteItem removes the record and its index entry in one MULTI/EXEC, so
// concurrent deletes of the same id have exactly one winner.
func (r *Repository) DeleteItem(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, r.itemKey(id))
		pipe.ZRem(ctx, r.indexKey(), id)
		return nil
	})
	if err != nil {
		return persistence("delete item", err)
	}
	if del.Val() == 0 {
		return simplecatalog.ErrItemNotFound
	}
	return nil
}

func decodeItem(data []byte) (*simplecatalog.CatalogItem, error) {
	var item simplecatalog.CatalogItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("%w: failed to decode item: %w", simplecatalog.ErrPersistence, err)
	}
	return &item, nil
}

func persistence(op string, err error) error {
	if errors.Is(err, simplecatalog.ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: redis %s: %w", simplecatalog.ErrPersistence, op, err)
}
