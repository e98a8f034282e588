package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tendant/simple-catalog/pkg/simplecatalog"
)

// Repository implements simplecatalog.Repository using in-memory storage
type Repository struct {
	mu      sync.RWMutex
	items   map[string]*simplecatalog.CatalogItem
	retired map[string]struct{} // ids of deleted items, never handed out again
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		items:   make(map[string]*simplecatalog.CatalogItem),
		retired: make(map[string]struct{}),
	}
}

func (r *Repository) CreateItem(ctx context.Context, item simplecatalog.NewItem) (*simplecatalog.CatalogItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var id string
	for {
		var err error
		id, err = simplecatalog.NewID()
		if err != nil {
			return nil, err
		}
		_, taken := r.items[id]
		_, used := r.retired[id]
		if !taken && !used {
			break
		}
	}

	stored := &simplecatalog.CatalogItem{
		ID:          id,
		Name:        item.Name,
		Description: item.Description,
		Price:       item.Price,
		Category:    item.Category,
		ImageRef:    item.ImageRef,
		CreatedAt:   time.Now().UTC(),
	}
	r.items[id] = stored

	// Return a copy to prevent external modifications
	itemCopy := *stored
	return &itemCopy, nil
}

func (r *Repository) ListItems(ctx context.Context) ([]*simplecatalog.CatalogItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*simplecatalog.CatalogItem, 0, len(r.items))
	for _, item := range r.items {
		itemCopy := *item
		result = append(result, &itemCopy)
	}

	// Newest first; ids are time ordered and break ties
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	return result, nil
}

func (r *Repository) GetItem(ctx context.Context, id string) (*simplecatalog.CatalogItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, exists := r.items[id]
	if !exists {
		return nil, simplecatalog.ErrItemNotFound
	}
	itemCopy := *item
	return &itemCopy, nil
}

func (r *Repository) DeleteItem(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[id]; !exists {
		return simplecatalog.ErrItemNotFound
	}
	delete(r.items, id)
	r.retired[id] = struct{}{}
	return nil
}
