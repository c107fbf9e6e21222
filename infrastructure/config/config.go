// Package config loads engine configuration from the environment with an
// optional YAML overlay file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds the full runtime configuration.
type Config struct {
	// Server configuration
	ListenAddress string `yaml:"listenAddress"`
	Environment   string `yaml:"environment"`
	LogLevel      string `yaml:"logLevel"`
	EnableCORS    bool   `yaml:"enableCORS"`

	// Database configuration
	DatabaseURL      string `yaml:"databaseUrl" validate:"required"`
	DatabaseUser     string `yaml:"databaseUser"`
	DatabasePassword string `yaml:"databasePassword"`

	// TTL sweeping
	TTLSweepInterval time.Duration `yaml:"ttlSweepInterval"`
	TTLBatchSize     int           `yaml:"ttlBatchSize"`
	TTLPrincipalType string        `yaml:"ttlPrincipalType"`
	TTLPrincipalID   string        `yaml:"ttlPrincipalId"`

	// Streams
	StreamRetention       time.Duration `yaml:"streamRetention"`
	StreamPruneInterval   time.Duration `yaml:"streamPruneInterval"`
	DefaultStreamViewType string        `yaml:"defaultStreamViewType" validate:"omitempty,oneof=KEYS_ONLY NEW_IMAGE OLD_IMAGE NEW_AND_OLD_IMAGES"`
	IteratorSigningKey    string        `yaml:"iteratorSigningKey"`
}

// Load reads configuration: defaults, then the YAML file named by
// PRETENDERDB_CONFIG (if any), then environment variables on top.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddress:       ":8000",
		Environment:         "development",
		LogLevel:            "info",
		EnableCORS:          true,
		TTLSweepInterval:    60 * time.Second,
		TTLBatchSize:        500,
		StreamRetention:     24 * time.Hour,
		StreamPruneInterval: time.Minute,
	}

	if path := os.Getenv("PRETENDERDB_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.ListenAddress = getEnv("LISTEN_ADDRESS", cfg.ListenAddress)
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.EnableCORS = getEnvBool("ENABLE_CORS", cfg.EnableCORS)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.DatabaseUser = getEnv("DATABASE_USER", cfg.DatabaseUser)
	cfg.DatabasePassword = getEnv("DATABASE_PASSWORD", cfg.DatabasePassword)
	cfg.TTLSweepInterval = getEnvDuration("TTL_SWEEP_INTERVAL", cfg.TTLSweepInterval)
	cfg.TTLBatchSize = getEnvInt("TTL_BATCH_SIZE", cfg.TTLBatchSize)
	cfg.TTLPrincipalType = getEnv("TTL_PRINCIPAL_TYPE", cfg.TTLPrincipalType)
	cfg.TTLPrincipalID = getEnv("TTL_PRINCIPAL_ID", cfg.TTLPrincipalID)
	cfg.StreamRetention = getEnvDuration("STREAM_RETENTION", cfg.StreamRetention)
	cfg.StreamPruneInterval = getEnvDuration("STREAM_PRUNE_INTERVAL", cfg.StreamPruneInterval)
	cfg.DefaultStreamViewType = getEnv("DEFAULT_STREAM_VIEW_TYPE", cfg.DefaultStreamViewType)
	cfg.IteratorSigningKey = getEnv("ITERATOR_SIGNING_KEY", cfg.IteratorSigningKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and value shapes.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// IsDevelopment reports whether the process runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// EffectiveDatabaseURL folds optional credentials into the URL for
// deployments that pass user and password separately.
func (c *Config) EffectiveDatabaseURL() string {
	if c.DatabaseUser == "" {
		return c.DatabaseURL
	}
	// pgx accepts keyword/value DSNs alongside URLs; appending the
	// credential keywords covers both forms.
	url := c.DatabaseURL + " user=" + c.DatabaseUser
	if c.DatabasePassword != "" {
		url += " password=" + c.DatabasePassword
	}
	return url
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value == "true" || value == "1" || value == "yes"
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
