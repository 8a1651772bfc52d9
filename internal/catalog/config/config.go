package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Driver selects the repository store backend.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// RemovalPolicy controls what happens to templates whose source file is
// removed while watch mode is running.
const (
	RemovalArchive = "archive"
	RemovalIgnore  = "ignore"
)

// DatabaseConfig holds backend selection and connection settings.
type DatabaseConfig struct {
	Driver string `env:"CATALOG_DATABASE_DRIVER" envDefault:"sqlite"`
	// PostgresURI is used when Driver is "postgres".
	PostgresURI string `env:"CATALOG_POSTGRES_URI" envDefault:"postgres://localhost:5432/zeal_catalog"`
	// SQLitePath is used when Driver is "sqlite".
	SQLitePath string `env:"CATALOG_SQLITE_PATH" envDefault:"catalog.db"`
}

// EmbeddingConfig holds extractor settings. Every stored vector must match
// Dimensions.
type EmbeddingConfig struct {
	Dimensions int           `env:"CATALOG_EMBEDDING_DIMENSIONS" envDefault:"256"`
	Timeout    time.Duration `env:"CATALOG_EXTRACTOR_TIMEOUT" envDefault:"30s"`
}

// IngestConfig holds ingestion pipeline settings.
type IngestConfig struct {
	Roots         []string `env:"CATALOG_INGEST_ROOTS" envSeparator:","`
	Include       []string `env:"CATALOG_INGEST_INCLUDE" envSeparator:"," envDefault:"*.json,*.yaml,*.yml"`
	Exclude       []string `env:"CATALOG_INGEST_EXCLUDE" envSeparator:","`
	BatchSize     int      `env:"CATALOG_INGEST_BATCH_SIZE" envDefault:"10"`
	Parallelism   int      `env:"CATALOG_INGEST_PARALLELISM" envDefault:"4"`
	StrictMode    bool     `env:"CATALOG_STRICT_VALIDATION" envDefault:"false"`
	RemovalPolicy string   `env:"CATALOG_WATCH_REMOVAL_POLICY" envDefault:"archive"`
}

// Config is the full catalog configuration, loaded from the environment.
type Config struct {
	Database  DatabaseConfig
	Embedding EmbeddingConfig
	Ingest    IngestConfig
}

// NewConfig loads configuration from the environment.
func NewConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config from environment: %w", err)
	}
	return cfg, nil
}
