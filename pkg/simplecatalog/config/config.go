package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-catalog/pkg/simplecatalog"
	"github.com/tendant/simple-catalog/pkg/simplecatalog/objectkey"
	"github.com/tendant/simple-catalog/pkg/simplecatalog/repo/memory"
	repopg "github.com/tendant/simple-catalog/pkg/simplecatalog/repo/postgres"
	reporedis "github.com/tendant/simple-catalog/pkg/simplecatalog/repo/redis"
	reposqlite "github.com/tendant/simple-catalog/pkg/simplecatalog/repo/sqlite"
	fsstorage "github.com/tendant/simple-catalog/pkg/simplecatalog/storage/fs"
	memorystorage "github.com/tendant/simple-catalog/pkg/simplecatalog/storage/memory"
	s3storage "github.com/tendant/simple-catalog/pkg/simplecatalog/storage/s3"
)

// Database kinds derived from DatabaseURL
const (
	DatabaseMemory   = "memory"
	DatabasePostgres = "postgres"
	DatabaseSQLite   = "sqlite"
	DatabaseRedis    = "redis"
)

// Storage kinds derived from StorageURL
const (
	StorageMemory = "memory"
	StorageFS     = "fs"
	StorageS3     = "s3"
)

// ServerConfig represents server configuration for the simple-catalog service.
// Field tags are read by cleanenv; see WithEnv and WithConfigFile.
type ServerConfig struct {
	Port        string `env:"PORT" env-default:"8080" yaml:"port"`
	Environment string `env:"ENVIRONMENT" env-default:"development" yaml:"environment"`

	// DATABASE_URL: memory | postgres(ql)://... | sqlite:///path.db | redis://...
	DatabaseURL string `env:"DATABASE_URL" env-default:"memory" yaml:"database_url"`
	DBSchema    string `env:"DB_SCHEMA" env-default:"catalog" yaml:"db_schema"`

	// STORAGE_URL: memory:// | file:///path | s3://bucket
	StorageURL string   `env:"STORAGE_URL" env-default:"memory://" yaml:"storage_url"`
	S3         S3Config `yaml:"s3"`

	MaxImageBytes     int64  `env:"MAX_IMAGE_BYTES" env-default:"5242880" yaml:"max_image_bytes"`
	SniffImageContent bool   `env:"SNIFF_IMAGE_CONTENT" env-default:"false" yaml:"sniff_image_content"`
	BlobKeyLayout     string `env:"BLOB_KEY_LAYOUT" env-default:"flat" yaml:"blob_key_layout"`

	// IMAGE_BASE_URL points image_url at a CDN; empty serves images from the API
	ImageBaseURL string `env:"IMAGE_BASE_URL" yaml:"image_base_url"`

	LogLevel            string `env:"LOG_LEVEL" env-default:"info" yaml:"log_level"`
	LogFormat           string `env:"LOG_FORMAT" env-default:"text" yaml:"log_format"`
	APIKeySHA256        string `env:"API_KEY_SHA256" yaml:"api_key_sha256"`
	CreateRatePerMinute int    `env:"CREATE_RATE_PER_MINUTE" env-default:"0" yaml:"create_rate_per_minute"`
	OTLPEndpoint        string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" yaml:"otlp_endpoint"`

	EnableEventLogging  bool          `env:"ENABLE_EVENT_LOGGING" env-default:"true" yaml:"enable_event_logging"`
	CompensationTimeout time.Duration `env:"COMPENSATION_TIMEOUT" env-default:"10s" yaml:"compensation_timeout"`
}

// S3Config holds options for s3:// storage
type S3Config struct {
	Region                 string `env:"S3_REGION" env-default:"us-east-1" yaml:"region"`
	Endpoint               string `env:"S3_ENDPOINT" yaml:"endpoint"`
	AccessKeyID            string `env:"S3_ACCESS_KEY_ID" yaml:"access_key_id"`
	SecretAccessKey        string `env:"S3_SECRET_ACCESS_KEY" yaml:"secret_access_key"`
	UsePathStyle           bool   `env:"S3_USE_PATH_STYLE" env-default:"false" yaml:"use_path_style"`
	CreateBucketIfNotExist bool   `env:"S3_CREATE_BUCKET_IF_NOT_EXIST" env-default:"false" yaml:"create_bucket_if_not_exist"`
	EnableSSE              bool   `env:"S3_ENABLE_SSE" env-default:"false" yaml:"enable_sse"`
	SSEAlgorithm           string `env:"S3_SSE_ALGORITHM" env-default:"AES256" yaml:"sse_algorithm"`
	SSEKMSKeyID            string `env:"S3_SSE_KMS_KEY_ID" yaml:"sse_kms_key_id"`
}

// DatabaseType returns the backend kind named by DatabaseURL.
func (c *ServerConfig) DatabaseType() (string, error) {
	u := strings.TrimSpace(c.DatabaseURL)
	switch {
	case u == "" || u == "memory" || u == "memory://":
		return DatabaseMemory, nil
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		return DatabasePostgres, nil
	case strings.HasPrefix(u, "sqlite://"):
		return DatabaseSQLite, nil
	case strings.HasPrefix(u, "redis://"), strings.HasPrefix(u, "rediss://"):
		return DatabaseRedis, nil
	}
	return "", fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory', 'postgresql://...', 'sqlite:///path' or 'redis://...')", c.DatabaseURL)
}

// StorageType returns the backend kind named by StorageURL.
func (c *ServerConfig) StorageType() (string, error) {
	u := strings.TrimSpace(c.StorageURL)
	switch {
	case u == "" || u == "memory" || u == "memory://":
		return StorageMemory, nil
	case strings.HasPrefix(u, "file://"):
		return StorageFS, nil
	case strings.HasPrefix(u, "s3://"):
		return StorageS3, nil
	}
	return "", fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', or 's3://...')", c.StorageURL)
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if _, err := c.DatabaseType(); err != nil {
		return err
	}
	st, err := c.StorageType()
	if err != nil {
		return err
	}
	if st == StorageFS && filesystemPath(c.StorageURL) == "" {
		return errors.New("filesystem path cannot be empty in STORAGE_URL")
	}
	if st == StorageS3 {
		if _, _, err := s3Location(c.StorageURL); err != nil {
			return err
		}
	}
	if c.MaxImageBytes <= 0 {
		return errors.New("max_image_bytes must be positive")
	}
	if _, err := objectkey.ForLayout(c.BlobKeyLayout); err != nil {
		return err
	}
	if c.CreateRatePerMinute < 0 {
		return errors.New("create_rate_per_minute cannot be negative")
	}
	return nil
}

// ImagePolicy returns the upload policy described by the configuration.
func (c *ServerConfig) ImagePolicy() simplecatalog.ImagePolicy {
	policy := simplecatalog.DefaultImagePolicy()
	policy.MaxSize = c.MaxImageBytes
	policy.SniffContent = c.SniffImageContent
	return policy
}

// Resources owns the connections opened by BuildService.
type Resources struct {
	closers []func() error
}

// Close releases every connection in reverse order of creation.
func (r *Resources) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Resources) add(fn func() error) {
	r.closers = append(r.closers, fn)
}

// BuildService creates a Service instance from the server configuration.
// The returned Resources must be closed when the service is no longer used.
func (c *ServerConfig) BuildService(ctx context.Context, logger *slog.Logger) (simplecatalog.Service, *Resources, error) {
	if logger == nil {
		logger = slog.Default()
	}
	res := &Resources{}

	repo, err := c.buildRepository(ctx, res)
	if err != nil {
		_ = res.Close()
		return nil, nil, fmt.Errorf("failed to build repository: %w", err)
	}

	store, err := c.buildStorageBackend(ctx)
	if err != nil {
		_ = res.Close()
		return nil, nil, fmt.Errorf("failed to build storage backend: %w", err)
	}

	keys, err := objectkey.ForLayout(c.BlobKeyLayout)
	if err != nil {
		_ = res.Close()
		return nil, nil, err
	}

	images := simplecatalog.NewImageStore(store,
		simplecatalog.WithImagePolicy(c.ImagePolicy()),
		simplecatalog.WithKeyGenerator(keys),
		simplecatalog.WithImageLogger(logger),
	)

	options := []simplecatalog.Option{
		simplecatalog.WithRepository(repo),
		simplecatalog.WithImageStore(images),
		simplecatalog.WithLogger(logger),
		simplecatalog.WithCompensationTimeout(c.CompensationTimeout),
	}
	if c.EnableEventLogging {
		options = append(options, simplecatalog.WithEventSink(simplecatalog.NewLoggingEventSink(logger)))
	}

	svc, err := simplecatalog.New(options...)
	if err != nil {
		_ = res.Close()
		return nil, nil, err
	}
	return svc, res, nil
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository(ctx context.Context, res *Resources) (simplecatalog.Repository, error) {
	dbType, err := c.DatabaseType()
	if err != nil {
		return nil, err
	}

	switch dbType {
	case DatabaseMemory:
		return memory.New(), nil

	case DatabasePostgres:
		pool, err := newPostgresPool(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, err
		}
		res.add(func() error { pool.Close(); return nil })
		repo := repopg.NewWithPool(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return repo, nil

	case DatabaseSQLite:
		repo, err := reposqlite.Open(sqlitePath(c.DatabaseURL))
		if err != nil {
			return nil, err
		}
		res.add(repo.Close)
		return repo, nil

	case DatabaseRedis:
		repo, err := reporedis.NewFromURL(ctx, c.DatabaseURL)
		if err != nil {
			return nil, err
		}
		res.add(repo.Close)
		return repo, nil
	}
	return nil, fmt.Errorf("unsupported database type: %s", dbType)
}

func newPostgresPool(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			ident := pgx.Identifier{schema}.Sanitize()
			if _, err := conn.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+ident); err != nil {
				return err
			}
			_, err := conn.Exec(ctx, "SET search_path TO "+ident)
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}

// buildStorageBackend creates a BlobStore based on the configuration
func (c *ServerConfig) buildStorageBackend(ctx context.Context) (simplecatalog.BlobStore, error) {
	st, err := c.StorageType()
	if err != nil {
		return nil, err
	}

	switch st {
	case StorageMemory:
		return memorystorage.New(), nil

	case StorageFS:
		return fsstorage.New(fsstorage.Config{BaseDir: filesystemPath(c.StorageURL)})

	case StorageS3:
		bucket, prefix, err := s3Location(c.StorageURL)
		if err != nil {
			return nil, err
		}
		return s3storage.New(ctx, s3storage.Config{
			Region:                 c.S3.Region,
			Bucket:                 bucket,
			KeyPrefix:              prefix,
			AccessKeyID:            c.S3.AccessKeyID,
			SecretAccessKey:        c.S3.SecretAccessKey,
			Endpoint:               c.S3.Endpoint,
			UsePathStyle:           c.S3.UsePathStyle,
			EnableSSE:              c.S3.EnableSSE,
			SSEAlgorithm:           c.S3.SSEAlgorithm,
			SSEKMSKeyID:            c.S3.SSEKMSKeyID,
			CreateBucketIfNotExist: c.S3.CreateBucketIfNotExist,
		})
	}
	return nil, fmt.Errorf("unsupported storage backend type: %s", st)
}

// filesystemPath extracts the directory from file:///path
func filesystemPath(storageURL string) string {
	return strings.TrimPrefix(strings.TrimSpace(storageURL), "file://")
}

// sqlitePath extracts the file path from sqlite:///path.db or sqlite://:memory:
func sqlitePath(databaseURL string) string {
	return strings.TrimPrefix(strings.TrimSpace(databaseURL), "sqlite://")
}

// s3Location splits s3://bucket/optional/prefix into bucket and key prefix.
func s3Location(storageURL string) (string, string, error) {
	u, err := url.Parse(strings.TrimSpace(storageURL))
	if err != nil {
		return "", "", fmt.Errorf("invalid STORAGE_URL: %w", err)
	}
	if u.Host == "" {
		return "", "", errors.New("S3 bucket name cannot be empty in STORAGE_URL")
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}
