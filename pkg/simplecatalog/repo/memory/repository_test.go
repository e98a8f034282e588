package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-catalog/pkg/simplecatalog"
	"github.com/tendant/simple-catalog/pkg/simplecatalog/repo/memory"
	"github.com/tendant/simple-catalog/pkg/simplecatalog/repo/repotest"
)

func TestMemoryRepository_Contract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) simplecatalog.Repository {
		return memory.New()
	})
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	created, err := repo.CreateItem(ctx, repotest.SampleItem("a.png"))
	require.NoError(t, err)
	created.Name = "mutated"

	got, err := repo.GetItem(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Veg Pizza", got.Name)

	got.Category = "mutated"
	items, err := repo.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Pasta", items[0].Category)
}

func TestMemoryRepository_ListNewestFirst(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	first, err := repo.CreateItem(ctx, repotest.SampleItem("1.png"))
	require.NoError(t, err)
	second, err := repo.CreateItem(ctx, repotest.SampleItem("2.png"))
	require.NoError(t, err)

	items, err := repo.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, second.ID, items[0].ID)
	assert.Equal(t, first.ID, items[1].ID)
}

func TestMemoryRepository_CancelledCreate(t *testing.T) {
	repo := memory.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.CreateItem(ctx, repotest.SampleItem("a.png"))
	assert.ErrorIs(t, err, context.Canceled)

	items, err := repo.ListItems(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}
