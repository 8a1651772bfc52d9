package config

import "fmt"

// Validate performs runtime validations on the loaded configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	switch cfg.Database.Driver {
	case DriverPostgres:
		if cfg.Database.PostgresURI == "" {
			return fmt.Errorf("postgres URI must be set when driver is %q", DriverPostgres)
		}
	case DriverSQLite:
		if cfg.Database.SQLitePath == "" {
			return fmt.Errorf("sqlite path must be set when driver is %q", DriverSQLite)
		}
	default:
		return fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
	if cfg.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive (got %d)", cfg.Embedding.Dimensions)
	}
	if cfg.Ingest.BatchSize <= 0 {
		return fmt.Errorf("ingest batch size must be positive (got %d)", cfg.Ingest.BatchSize)
	}
	if cfg.Ingest.Parallelism <= 0 {
		return fmt.Errorf("ingest parallelism must be positive (got %d)", cfg.Ingest.Parallelism)
	}
	switch cfg.Ingest.RemovalPolicy {
	case RemovalArchive, RemovalIgnore:
	default:
		return fmt.Errorf("unknown watch removal policy %q", cfg.Ingest.RemovalPolicy)
	}
	return nil
}
