package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "catalog.db", cfg.Database.SQLitePath)
	assert.Equal(t, 256, cfg.Embedding.Dimensions)
	assert.Equal(t, []string{"*.json", "*.yaml", "*.yml"}, cfg.Ingest.Include)
	assert.Equal(t, 10, cfg.Ingest.BatchSize)
	assert.Equal(t, RemovalArchive, cfg.Ingest.RemovalPolicy)
}

func TestNewConfigFromEnvironment(t *testing.T) {
	t.Setenv("CATALOG_DATABASE_DRIVER", "postgres")
	t.Setenv("CATALOG_POSTGRES_URI", "postgres://db:5432/catalog")
	t.Setenv("CATALOG_EMBEDDING_DIMENSIONS", "512")
	t.Setenv("CATALOG_INGEST_ROOTS", "defs,extra/defs")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "postgres://db:5432/catalog", cfg.Database.PostgresURI)
	assert.Equal(t, 512, cfg.Embedding.Dimensions)
	assert.Equal(t, []string{"defs", "extra/defs"}, cfg.Ingest.Roots)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := NewConfig()
		require.NoError(t, err)
		return cfg
	}

	assert.NoError(t, Validate(valid()))
	assert.Error(t, Validate(nil))

	cases := map[string]func(*Config){
		"unknown driver":       func(c *Config) { c.Database.Driver = "oracle" },
		"empty sqlite path":    func(c *Config) { c.Database.SQLitePath = "" },
		"zero dimensions":      func(c *Config) { c.Embedding.Dimensions = 0 },
		"zero batch size":      func(c *Config) { c.Ingest.BatchSize = 0 },
		"bad removal policy":   func(c *Config) { c.Ingest.RemovalPolicy = "delete" },
		"negative parallelism": func(c *Config) { c.Ingest.Parallelism = -1 },
	}
	for name, mutate := range cases {
		cfg := valid()
		mutate(cfg)
		assert.Error(t, Validate(cfg), name)
	}

	postgres := valid()
	postgres.Database.Driver = DriverPostgres
	postgres.Database.PostgresURI = ""
	assert.Error(t, Validate(postgres))
}
