// Package cli implements the catalogd command tree.
package cli

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/config"
	"github.com/offbit-ai/zeal-catalog/internal/catalog/database"
	"github.com/offbit-ai/zeal-catalog/internal/catalog/extract"
	"github.com/offbit-ai/zeal-catalog/internal/catalog/ingest"
	"github.com/offbit-ai/zeal-catalog/internal/catalog/logging"
	"github.com/offbit-ai/zeal-catalog/internal/catalog/service"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "catalogd",
	Short: "Node template catalog",
	Long:  `catalogd ingests node template definitions, indexes them for lexical and semantic search, and serves catalog queries.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose logging")
}

// Root returns the assembled command tree.
func Root() *cobra.Command {
	return rootCmd
}

// stack bundles everything a command needs, with a single cleanup.
type stack struct {
	cfg      *config.Config
	logger   *zap.Logger
	db       database.Database
	svc      service.CatalogService
	pipeline *ingest.Pipeline
}

func (s *stack) close() {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.logger != nil {
		_ = s.logger.Sync()
	}
}

func buildStack(ctx context.Context) (*stack, error) {
	// Missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	cfg, err := config.NewConfig()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	var logger *zap.Logger
	if verbose {
		logger = logging.NewDevelopmentLogger("catalogd")
	} else {
		logger = logging.NewLogger("catalogd")
	}

	var db database.Database
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		db, err = database.NewPostgresStore(ctx, cfg.Database.PostgresURI, cfg.Embedding.Dimensions)
	case config.DriverSQLite:
		db, err = database.NewSQLiteStore(ctx, cfg.Database.SQLitePath, cfg.Embedding.Dimensions)
	default:
		err = fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
	if err != nil {
		return nil, err
	}

	svc, err := service.NewCatalogService(service.Options{
		Database:         db,
		Embedder:         extract.NewLocalEmbedder(cfg.Embedding.Dimensions),
		Metadata:         extract.NewLocalMetadata(),
		StrictValidation: cfg.Ingest.StrictMode,
		ExtractorTimeout: cfg.Embedding.Timeout,
		Logger:           logger,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &stack{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		svc:      svc,
		pipeline: ingest.NewPipeline(svc, cfg.Ingest, logger),
	}, nil
}
