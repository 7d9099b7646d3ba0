package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// Config is the process configuration. Values come from an optional TOML
// file named by SUPPLYSIDE_CONFIG, then from SUPPLYSIDE_* environment
// variables, which win.
type Config struct {
	DatabaseURL string `toml:"database_url" validate:"required_unless=InMemory true"` // SUPPLYSIDE_DATABASE_URL
	HTTPAddr    string `toml:"http_addr" validate:"required"`                         // SUPPLYSIDE_HTTP_ADDR (default ":8080")
	NATSURL     string `toml:"nats_url"`                                              // SUPPLYSIDE_NATS_URL (optional, empty = no events)
	LogLevel    string `toml:"log_level" validate:"oneof=debug info warn error"`      // SUPPLYSIDE_LOG_LEVEL (default "info")

	// File storage
	S3Bucket   string `toml:"s3_bucket"`                     // SUPPLYSIDE_S3_BUCKET (enables S3 when set)
	S3Endpoint string `toml:"s3_endpoint"`                   // SUPPLYSIDE_S3_ENDPOINT (custom endpoint for MinIO)
	S3Region   string `toml:"s3_region" validate:"required"` // SUPPLYSIDE_S3_REGION (default "us-east-1")
	S3Prefix   string `toml:"s3_prefix"`                     // SUPPLYSIDE_S3_PREFIX (default "files")

	// InMemory keeps all state in process memory; no database is used.
	InMemory bool `toml:"-"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the configuration of a database-backed process.
func Load() (*Config, error) {
	return load(false)
}

// LoadInMemory reads the configuration of a process keeping its state in
// memory. No database URL is required.
func LoadInMemory() (*Config, error) {
	return load(true)
}

func load(inMemory bool) (*Config, error) {
	c := &Config{
		HTTPAddr: ":8080",
		LogLevel: "info",
		S3Region: "us-east-1",
		S3Prefix: "files",
	}
	if path := os.Getenv("SUPPLYSIDE_CONFIG"); path != "" {
		md, err := toml.DecodeFile(path, c)
		if err != nil {
			return nil, fmt.Errorf("SUPPLYSIDE_CONFIG: %w", err)
		}
		if keys := md.Undecoded(); len(keys) > 0 {
			return nil, fmt.Errorf("SUPPLYSIDE_CONFIG: unknown key %s", keys[0])
		}
	}

	c.DatabaseURL = envOrDefault("SUPPLYSIDE_DATABASE_URL", c.DatabaseURL)
	c.HTTPAddr = envOrDefault("SUPPLYSIDE_HTTP_ADDR", c.HTTPAddr)
	c.NATSURL = envOrDefault("SUPPLYSIDE_NATS_URL", c.NATSURL)
	c.LogLevel = envOrDefault("SUPPLYSIDE_LOG_LEVEL", c.LogLevel)
	c.S3Bucket = envOrDefault("SUPPLYSIDE_S3_BUCKET", c.S3Bucket)
	c.S3Endpoint = envOrDefault("SUPPLYSIDE_S3_ENDPOINT", c.S3Endpoint)
	c.S3Region = envOrDefault("SUPPLYSIDE_S3_REGION", c.S3Region)
	c.S3Prefix = envOrDefault("SUPPLYSIDE_S3_PREFIX", c.S3Prefix)
	c.InMemory = inMemory

	if err := validate.Struct(c); err != nil {
		return nil, describe(err)
	}
	return c, nil
}

var envNames = map[string]string{
	"DatabaseURL": "SUPPLYSIDE_DATABASE_URL",
	"HTTPAddr":    "SUPPLYSIDE_HTTP_ADDR",
	"LogLevel":    "SUPPLYSIDE_LOG_LEVEL",
	"S3Region":    "SUPPLYSIDE_S3_REGION",
}

// describe names the environment variable behind the first failed check.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	name := envNames[fe.Field()]
	if name == "" {
		name = fe.Field()
	}
	switch fe.Tag() {
	case "required", "required_unless":
		return fmt.Errorf("%s is required", name)
	case "oneof":
		return fmt.Errorf("%s must be one of %s, got %q", name, fe.Param(), fe.Value())
	}
	return fmt.Errorf("%s: failed %s check", name, fe.Tag())
}

// SlogLevel maps LogLevel onto a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
