// Package presets builds ready-to-use catalog services for common setups.
package presets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/tendant/simple-catalog/pkg/simplecatalog"
	"github.com/tendant/simple-catalog/pkg/simplecatalog/config"
	memoryrepo "github.com/tendant/simple-catalog/pkg/simplecatalog/repo/memory"
	fsstorage "github.com/tendant/simple-catalog/pkg/simplecatalog/storage/fs"
	memorystorage "github.com/tendant/simple-catalog/pkg/simplecatalog/storage/memory"
)

// NewDevelopment creates a service for local development: records in
// memory, images on disk under ./dev-data, lifecycle events logged.
//
// The returned cleanup removes the storage directory.
//
//	svc, cleanup, err := presets.NewDevelopment()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanup()
func NewDevelopment(opts ...DevelopmentOption) (simplecatalog.Service, func(), error) {
	cfg := &devConfig{
		storageDir: "./dev-data",
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	fsBackend, err := fsstorage.New(fsstorage.Config{BaseDir: cfg.storageDir})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create filesystem storage: %w", err)
	}

	svc, err := simplecatalog.New(
		simplecatalog.WithRepository(memoryrepo.New()),
		simplecatalog.WithImageStore(simplecatalog.NewImageStore(fsBackend,
			simplecatalog.WithImageLogger(cfg.logger),
		)),
		simplecatalog.WithLogger(cfg.logger),
		simplecatalog.WithEventSink(simplecatalog.NewLoggingEventSink(cfg.logger)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create service: %w", err)
	}

	cleanup := func() {
		os.RemoveAll(cfg.storageDir)
	}
	return svc, cleanup, nil
}

// NewTesting creates an isolated in-memory service for tests. With
// WithTestFixtures the catalog starts with the sample items from Fixtures.
func NewTesting(t testing.TB, opts ...TestingOption) simplecatalog.Service {
	t.Helper()
	cfg := &testConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	svc, err := simplecatalog.New(
		simplecatalog.WithRepository(memoryrepo.New()),
		simplecatalog.WithBlobStore(memorystorage.New()),
	)
	if err != nil {
		t.Fatalf("failed to create test service: %v", err)
	}

	if cfg.fixtures {
		for _, req := range Fixtures() {
			if _, err := svc.CreateItem(context.Background(), req); err != nil {
				t.Fatalf("failed to seed fixture: %v", err)
			}
		}
	}
	return svc
}

// NewProduction builds a service from the environment and refuses the
// in-memory backends. The returned Resources must be closed on shutdown.
func NewProduction(ctx context.Context, opts ...config.Option) (simplecatalog.Service, *config.Resources, error) {
	cfg, err := config.Load(append([]config.Option{config.WithEnv()}, opts...)...)
	if err != nil {
		return nil, nil, err
	}

	dbType, err := cfg.DatabaseType()
	if err != nil {
		return nil, nil, err
	}
	if dbType == config.DatabaseMemory {
		return nil, nil, errors.New("production preset requires a persistent DATABASE_URL (memory not allowed in production)")
	}
	storageType, err := cfg.StorageType()
	if err != nil {
		return nil, nil, err
	}
	if storageType == config.StorageMemory {
		return nil, nil, errors.New("production preset requires persistent storage (s3 or file, not memory)")
	}

	return cfg.BuildService(ctx, slog.Default())
}

// Fixtures returns sample create requests, each with a small PNG image.
func Fixtures() []simplecatalog.CreateItemRequest {
	samples := []struct {
		name, description, price, category string
	}{
		{"Veg Pizza", "Cheesy vegetarian pizza", "12.50", "Pasta"},
		{"Garlic Bread", "Toasted bread with garlic butter", "4.25", "Sides"},
		{"Tiramisu", "Coffee flavoured Italian dessert", "6.00", "Desserts"},
	}

	reqs := make([]simplecatalog.CreateItemRequest, 0, len(samples))
	for _, s := range samples {
		reqs = append(reqs, simplecatalog.CreateItemRequest{
			Fields: simplecatalog.ItemFields{
				Name:        ptr(s.name),
				Description: ptr(s.description),
				Price:       ptr(s.price),
				Category:    ptr(s.category),
			},
			Image: &simplecatalog.Attachment{
				Reader:      bytes.NewReader(fixtureImage),
				Size:        int64(len(fixtureImage)),
				ContentType: "image/png",
				FileName:    "fixture.png",
			},
		})
	}
	return reqs
}

var fixtureImage = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func ptr(s string) *string { return &s }

type devConfig struct {
	storageDir string
	logger     *slog.Logger
}

type testConfig struct {
	fixtures bool
}

// DevelopmentOption is a functional option for NewDevelopment
type DevelopmentOption func(*devConfig)

// WithDevStorage sets the development storage directory
func WithDevStorage(dir string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.storageDir = dir
	}
}

// WithDevLogger sets the logger used by the development service
func WithDevLogger(logger *slog.Logger) DevelopmentOption {
	return func(cfg *devConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// TestingOption is a functional option for NewTesting
type TestingOption func(*testConfig)

// WithTestFixtures seeds the catalog with Fixtures
func WithTestFixtures() TestingOption {
	return func(cfg *testConfig) {
		cfg.fixtures = true
	}
}
