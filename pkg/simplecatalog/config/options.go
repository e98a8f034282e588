package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadServerConfig reads configuration from the process environment.
func LoadServerConfig() (*ServerConfig, error) {
	return Load(WithEnv())
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:                "8080",
		Environment:         "development",
		DatabaseURL:         "memory",
		DBSchema:            "catalog",
		StorageURL:          "memory://",
		S3:                  S3Config{Region: "us-east-1", SSEAlgorithm: "AES256"},
		MaxImageBytes:       5 * 1024 * 1024,
		BlobKeyLayout:       "flat",
		LogLevel:            "info",
		LogFormat:           "text",
		EnableEventLogging:  true,
		CompensationTimeout: 10 * time.Second,
	}
}

// WithEnv reads every tagged field from the environment. Unset variables
// fall back to their env-default, so options that should win over the
// environment go after WithEnv.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return nil
	}
}

// WithConfigFile reads a yaml, json, toml or .env file and then applies
// environment overrides on top.
func WithConfigFile(path string) Option {
	return func(c *ServerConfig) error {
		if err := cleanenv.ReadConfig(path, c); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		return nil
	}
}

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabaseURL selects the record store
func WithDatabaseURL(url string) Option {
	return func(c *ServerConfig) error {
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the Postgres schema
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithStorageURL selects the blob backend
func WithStorageURL(url string) Option {
	return func(c *ServerConfig) error {
		c.StorageURL = url
		return nil
	}
}

// WithS3 replaces the S3 options
func WithS3(s3 S3Config) Option {
	return func(c *ServerConfig) error {
		c.S3 = s3
		return nil
	}
}

// WithMaxImageBytes sets the upload size limit
func WithMaxImageBytes(n int64) Option {
	return func(c *ServerConfig) error {
		if n <= 0 {
			return fmt.Errorf("max image bytes must be positive, got: %d", n)
		}
		c.MaxImageBytes = n
		return nil
	}
}

// WithBlobKeyLayout sets the blob naming layout ("flat" or "sharded")
func WithBlobKeyLayout(layout string) Option {
	return func(c *ServerConfig) error {
		c.BlobKeyLayout = layout
		return nil
	}
}

// WithCreateRateLimit caps item creations per minute; 0 disables the limit
func WithCreateRateLimit(perMinute int) Option {
	return func(c *ServerConfig) error {
		c.CreateRatePerMinute = perMinute
		return nil
	}
}

// WithEventLogging toggles the logging event sink
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}
