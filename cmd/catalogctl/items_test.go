package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-catalog/pkg/simplecatalog"
)

type harness struct {
	databaseURL string
	storageURL  string
	imagePath   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "pizza.png")
	require.NoError(t, os.WriteFile(imagePath, []byte("\x89PNG\r\n\x1a\nbody"), 0o600))
	return &harness{
		databaseURL: "sqlite://" + filepath.Join(dir, "catalog.db"),
		storageURL:  "file://" + filepath.Join(dir, "blobs"),
		imagePath:   imagePath,
	}
}

func (h *harness) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	c := &cli{}
	t.Cleanup(func() { _ = c.close() })
	cmd := newRootCmd(c)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--database-url", h.databaseURL, "--storage-url", h.storageURL}, args...))
	err := cmd.Execute()
	require.NoError(t, c.close())
	return stdout.String(), stderr.String(), err
}

func TestCatalogctlLifecycle(t *testing.T) {
	h := newHarness(t)

	out, _, err := h.run(t, "add",
		"--name", "Veg Pizza",
		"--description", "Cheesy vegetarian pizza",
		"--price", "12.50",
		"--category", "Pasta",
		"--image", h.imagePath,
	)
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	require.True(t, simplecatalog.IsValidID(id), out)

	out, _, err = h.run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "12.50")

	out, _, err = h.run(t, "--json", "show", id)
	require.NoError(t, err)
	var item simplecatalog.CatalogItem
	require.NoError(t, json.Unmarshal([]byte(out), &item))
	assert.Equal(t, "Veg Pizza", item.Name)
	assert.Equal(t, "Pasta", item.Category)

	out, _, err = h.run(t, "remove", id)
	require.NoError(t, err)
	assert.Contains(t, out, "removed "+id)

	_, _, err = h.run(t, "show", id)
	assert.ErrorIs(t, err, simplecatalog.ErrItemNotFound)
}

func TestCatalogctlAddValidation(t *testing.T) {
	h := newHarness(t)

	_, stderr, err := h.run(t, "add", "--name", "A", "--price", "-5", "--image", h.imagePath)
	require.Error(t, err)
	assert.Equal(t, simplecatalog.KindValidationFailed, simplecatalog.KindOf(err))
	assert.Contains(t, stderr, "Name must be at least 2 characters long")
	assert.Contains(t, stderr, "Category is required")

	_, _, err = h.run(t, "add", "--name", "Veg Pizza")
	assert.ErrorIs(t, err, simplecatalog.ErrMissingImage)
}

func TestCatalogctlRejectsMalformedID(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run(t, "remove", "xyz")
	assert.ErrorIs(t, err, simplecatalog.ErrInvalidIdentifier)
}
