//go:build e2e

// Package e2e exercises the full catalog stack in process: a SQLite-backed
// store, the local extractors, batch ingestion over real definition files
// and both search paths. Run with: go test -tags e2e ./e2e/...
package e2e

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/config"
	"github.com/offbit-ai/zeal-catalog/internal/catalog/database"
	"github.com/offbit-ai/zeal-catalog/internal/catalog/extract"
	"github.com/offbit-ai/zeal-catalog/internal/catalog/ingest"
	"github.com/offbit-ai/zeal-catalog/internal/catalog/models"
	"github.com/offbit-ai/zeal-catalog/internal/catalog/seed"
	"github.com/offbit-ai/zeal-catalog/internal/catalog/service"
)

const dims = 64

type stack struct {
	db       *database.SQLiteStore
	svc      service.CatalogService
	pipeline *ingest.Pipeline
	defsDir  string
}

func newStack(t *testing.T) *stack {
	t.Helper()
	ctx := context.Background()

	db, err := database.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "catalog.db"), dims)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc, err := service.NewCatalogService(service.Options{
		Database: db,
		Embedder: extract.NewLocalEmbedder(dims),
		Metadata: extract.NewLocalMetadata(),
	})
	require.NoError(t, err)

	defsDir := t.TempDir()
	pipeline := ingest.NewPipeline(svc, config.IngestConfig{
		Roots:   []string{defsDir},
		Include: []string{"*.json", "*.yaml", "*.yml"},
	}, nil)

	return &stack{db: db, svc: svc, pipeline: pipeline, defsDir: defsDir}
}

func (s *stack) writeDefinition(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(s.defsDir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCatalogEndToEnd(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)

	require.NoError(t, seed.Seed(ctx, s.db, nil))
	categories, err := s.db.ListCategories(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, categories)

	s.writeDefinition(t, "tools.json", `[
		{
			"title": "HTTP Client",
			"description": "Makes HTTP requests against REST APIs",
			"tags": ["http", "rest"],
			"ports": ["in", "out"]
		},
		{
			"title": "Webhook Sender",
			"description": "Sends webhook notifications over HTTP",
			"tags": ["http", "webhook"],
			"ports": ["in", "out"]
		}
	]`)
	s.writeDefinition(t, "data-sources.yaml", `
postgresReader:
  title: Postgres Reader
  description: Reads rows from a Postgres table
  tags: [sql, database]
  ports: [in, out]
`)

	result, err := s.pipeline.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 3, result.Succeeded)
	assert.Zero(t, result.Failed)
	assert.Empty(t, result.Errors)

	// Re-running an unchanged tree is a no-op.
	rerun, err := s.pipeline.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, rerun.Skipped)
	assert.Zero(t, rerun.Succeeded)

	tpl, err := s.svc.GetTemplate(ctx, "tools_http-client")
	require.NoError(t, err)
	require.NotNil(t, tpl)
	assert.Equal(t, "tools", tpl.Category)

	// Same-category templates link to each other after the inference pass.
	entry, err := s.svc.GetRepository(ctx, "tools_http-client")
	require.NoError(t, err)
	require.NotNil(t, entry)
	var linked []string
	for _, rel := range entry.Relationships {
		linked = append(linked, rel.TargetID)
	}
	assert.Contains(t, linked, "tools_webhook-sender")

	hits, err := s.svc.Search(ctx, &models.SearchQuery{Query: "http"})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for _, hit := range hits {
		assert.NotEqual(t, "data-sources_postgres-reader", hit.Template.ID)
	}

	semantic, err := s.svc.SemanticSearch(ctx, &models.SearchQuery{Query: "read rows from postgres table", Limit: 1})
	require.NoError(t, err)
	require.Len(t, semantic, 1)
	assert.Equal(t, "data-sources_postgres-reader", semantic[0].Template.ID)

	require.NoError(t, s.svc.RecordUsage(ctx, &models.UsageEvent{
		TemplateID: "tools_http-client",
		Action:     "execute",
		Success:    true,
	}))
	stats, err := s.svc.GetUsageStats(ctx, "tools_http-client")
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.TotalCount)
	assert.EqualValues(t, 1, stats.SuccessCount)
}

func TestVersionUpgradeEndToEnd(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)

	path := s.writeDefinition(t, "tools.json", `{
		"title": "HTTP Client",
		"version": "1.0.0",
		"description": "Makes HTTP requests",
		"ports": ["in", "out"]
	}`)

	_, err := s.pipeline.Run(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{
		"title": "HTTP Client",
		"version": "2.0.0",
		"description": "Makes HTTP requests with retries",
		"ports": ["in", "out"]
	}`), 0o644))

	_, err = s.pipeline.IngestFile(ctx, path)
	require.NoError(t, err)

	versions, err := s.svc.GetVersions(ctx, "tools_http-client")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "2.0.0", versions[0].Version)
	assert.True(t, versions[0].Breaking)
}

func TestSourceRemovalArchivesTemplates(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)

	path := s.writeDefinition(t, "tools.json", `{"title": "HTTP Client", "ports": ["in", "out"]}`)
	_, err := s.pipeline.Run(ctx)
	require.NoError(t, err)

	archived, err := s.svc.ArchiveBySourceLocation(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, archived)

	tpl, err := s.svc.GetTemplate(ctx, "tools_http-client")
	require.NoError(t, err)
	require.NotNil(t, tpl)
	assert.Equal(t, models.StatusArchived, tpl.Status)

	// Archived templates disappear from search.
	hits, err := s.svc.Search(ctx, &models.SearchQuery{Query: "http"})
	require.NoError(t, err)
	assert.Empty(t, hits)
}
