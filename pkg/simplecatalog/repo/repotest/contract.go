// Package repotest holds the behavioral checks every simplecatalog.Repository
// backend must pass.
package repotest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-catalog/pkg/simplecatalog"
)

// SampleItem returns a valid NewItem bound to imageRef.
func SampleItem(imageRef string) simplecatalog.NewItem {
	return simplecatalog.NewItem{
		Name:        "Veg Pizza",
		Description: "Cheesy delight",
		Price:       decimal.RequireFromString("12.5"),
		Category:    "Pasta",
		ImageRef:    imageRef,
	}
}

// Run exercises repo against the Repository contract. newRepo must return an
// empty repository.
func Run(t *testing.T, newRepo func(t *testing.T) simplecatalog.Repository) {
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		repo := newRepo(t)

		created, err := repo.CreateItem(ctx, SampleItem("a.png"))
		require.NoError(t, err)
		assert.True(t, simplecatalog.IsValidID(created.ID), created.ID)
		assert.False(t, created.CreatedAt.IsZero())

		got, err := repo.GetItem(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, "Veg Pizza", got.Name)
		assert.Equal(t, "Cheesy delight", got.Description)
		assert.True(t, decimal.RequireFromString("12.5").Equal(got.Price), got.Price.String())
		assert.Equal(t, "Pasta", got.Category)
		assert.Equal(t, "a.png", got.ImageRef)
	})

	t.Run("GetNotFound", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetItem(ctx, "0123456789abcdef01234567")
		assert.ErrorIs(t, err, simplecatalog.ErrItemNotFound)
	})

	t.Run("ListContainsCreated", func(t *testing.T) {
		repo := newRepo(t)

		items, err := repo.ListItems(ctx)
		require.NoError(t, err)
		assert.Empty(t, items)

		ids := make(map[string]bool)
		for i := 0; i < 3; i++ {
			item, err := repo.CreateItem(ctx, SampleItem(fmt.Sprintf("%d.png", i)))
			require.NoError(t, err)
			ids[item.ID] = true
		}

		items, err = repo.ListItems(ctx)
		require.NoError(t, err)
		require.Len(t, items, 3)
		for _, item := range items {
			assert.True(t, ids[item.ID])
		}
	})

	t.Run("DeleteRemovesItem", func(t *testing.T) {
		repo := newRepo(t)

		item, err := repo.CreateItem(ctx, SampleItem("a.png"))
		require.NoError(t, err)

		require.NoError(t, repo.DeleteItem(ctx, item.ID))

		_, err = repo.GetItem(ctx, item.ID)
		assert.ErrorIs(t, err, simplecatalog.ErrItemNotFound)
		assert.ErrorIs(t, repo.DeleteItem(ctx, item.ID), simplecatalog.ErrItemNotFound)

		items, err := repo.ListItems(ctx)
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("ConcurrentDeleteHasOneWinner", func(t *testing.T) {
		repo := newRepo(t)

		item, err := repo.CreateItem(ctx, SampleItem("a.png"))
		require.NoError(t, err)

		var wg sync.WaitGroup
		var wins, notFound atomic.Int32
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := repo.DeleteItem(ctx, item.ID)
				if err == nil {
					wins.Add(1)
				} else if assert.ErrorIs(t, err, simplecatalog.ErrItemNotFound) {
					notFound.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
		assert.Equal(t, int32(7), notFound.Load())
	})

	t.Run("IDsAreUnique", func(t *testing.T) {
		repo := newRepo(t)
		seen := make(map[string]bool)
		for i := 0; i < 20; i++ {
			item, err := repo.CreateItem(ctx, SampleItem("x.png"))
			require.NoError(t, err)
			require.False(t, seen[item.ID], "duplicate id %s", item.ID)
			seen[item.ID] = true
		}
	})
}
