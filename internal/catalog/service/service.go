// Package service holds the backend-agnostic catalog rules: validation
// before any write, lifecycle transition enforcement, version
// monotonicity, change detection and the extract-then-store orchestration.
// Keeping these out of the stores means the two backends cannot drift.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/mod/semver"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/database"
	"github.com/offbit-ai/zeal-catalog/internal/catalog/extract"
	"github.com/offbit-ai/zeal-catalog/internal/catalog/models"
	"github.com/offbit-ai/zeal-catalog/internal/catalog/normalize"
	"github.com/offbit-ai/zeal-catalog/internal/version"
)

// UpsertResult reports what an upsert decided to do.
type UpsertResult struct {
	Template       *models.Template
	Skipped        bool
	Created        bool
	VersionCreated bool
}

// CatalogService is the write and query surface the ingestion pipeline and
// the CLI talk to.
type CatalogService interface {
	// UpsertTemplate validates, diffs and stores a canonical template.
	// An unchanged template is skipped without calling the extractors.
	UpsertTemplate(ctx context.Context, tpl *models.Template) (*UpsertResult, error)

	GetTemplate(ctx context.Context, id string) (*models.Template, error)
	ListTemplates(ctx context.Context, filter *models.TemplateFilter) ([]*models.Template, error)
	GetRepository(ctx context.Context, templateID string) (*models.RepositoryEntry, error)
	GetVersions(ctx context.Context, templateID string) ([]models.VersionRecord, error)

	// ArchiveBySourceLocation marks every template ingested from the given
	// file location as archived. Used by the watch removal policy.
	ArchiveBySourceLocation(ctx context.Context, location string) (int, error)

	// Search is the lexical path; SemanticSearch embeds the query text and
	// ranks by cosine similarity against the combined embedding.
	Search(ctx context.Context, query *models.SearchQuery) ([]models.SearchHit, error)
	SemanticSearch(ctx context.Context, query *models.SearchQuery) ([]models.SearchHit, error)

	// InferRelationships recomputes the derived edges for the given
	// template ids and applies them with replace-all semantics.
	InferRelationships(ctx context.Context, templateIDs []string) error

	RecordUsage(ctx context.Context, event *models.UsageEvent) error
	GetUsageStats(ctx context.Context, templateID string) (*models.UsageStats, error)

	// RegisterDynamicTemplate stores a declarative contract and synthesizes
	// catalog templates from it. The contract is parsed as data; nothing is
	// imported or executed.
	RegisterDynamicTemplate(ctx context.Context, dyn *models.DynamicTemplate) (*models.DynamicTemplate, []*models.Template, error)
	ListDynamicTemplates(ctx context.Context) ([]*models.DynamicTemplate, error)
}

type catalogService struct {
	db               database.Database
	embedder         extract.EmbeddingExtractor
	metadata         extract.MetadataExtractor
	validator        *normalize.Validator
	extractorTimeout time.Duration
	logger           *zap.Logger
}

// Options configures a catalog service.
type Options struct {
	Database         database.Database
	Embedder         extract.EmbeddingExtractor
	Metadata         extract.MetadataExtractor
	StrictValidation bool
	ExtractorTimeout time.Duration
	Logger           *zap.Logger
}

// NewCatalogService wires the store and extractors together.
func NewCatalogService(opts Options) (CatalogService, error) {
	if opts.Database == nil {
		return nil, fmt.Errorf("database is required")
	}
	if opts.Embedder == nil {
		return nil, fmt.Errorf("embedding extractor is required")
	}
	if opts.Metadata == nil {
		return nil, fmt.Errorf("metadata extractor is required")
	}
	if opts.ExtractorTimeout <= 0 {
		opts.ExtractorTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &catalogService{
		db:               opts.Database,
		embedder:         opts.Embedder,
		metadata:         opts.Metadata,
		validator:        &normalize.Validator{Strict: opts.StrictValidation},
		extractorTimeout: opts.ExtractorTimeout,
		logger:           opts.Logger.Named("catalog-service"),
	}, nil
}

// checkVersion enforces semver monotonicity against the stored template.
func checkVersion(existing, incoming *models.Template) error {
	newV := version.EnsureVPrefix(incoming.Version)
	if !semver.IsValid(newV) {
		return fmt.Errorf("%w: %q is not valid semver", database.ErrInvalidVersion, incoming.Version)
	}
	if existing == nil {
		return nil
	}
	oldV := version.EnsureVPrefix(existing.Version)
	if !semver.IsValid(oldV) {
		// A stored pre-semver version never blocks an upgrade.
		return nil
	}
	if semver.Compare(newV, oldV) < 0 {
		return fmt.Errorf("%w: %s is older than stored %s", database.ErrInvalidVersion, incoming.Version, existing.Version)
	}
	return nil
}

func (s *catalogService) UpsertTemplate(ctx context.Context, tpl *models.Template) (*UpsertResult, error) {
	if tpl == nil {
		return nil, fmt.Errorf("%w: template is required", database.ErrInvalidInput)
	}
	if err := s.validator.Validate(tpl); err != nil {
		return nil, fmt.Errorf("%w: %v", database.ErrInvalidInput, err)
	}

	existing, err := s.db.GetTemplate(ctx, tpl.ID)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		if !models.CanTransition(existing.Status, tpl.Status) {
			return nil, fmt.Errorf("%w: status cannot move from %s to %s",
				database.ErrInvalidInput, existing.Status, tpl.Status)
		}
		if err := checkVersion(existing, tpl); err != nil {
			return nil, err
		}
		if !HasChanges(existing, tpl) {
			s.logger.Debug("template unchanged, skipping", zap.String("id", tpl.ID))
			return &UpsertResult{Template: existing, Skipped: true}, nil
		}
		tpl.CreatedAt = existing.CreatedAt
	} else {
		if err := checkVersion(nil, tpl); err != nil {
			return nil, err
		}
	}

	entry, err := s.buildEntry(ctx, tpl)
	if err != nil {
		return nil, err
	}

	if err := s.db.UpsertRepository(ctx, entry); err != nil {
		return nil, err
	}

	result := &UpsertResult{Template: tpl, Created: existing == nil}

	versionAdvanced := existing == nil ||
		semver.Compare(version.EnsureVPrefix(tpl.Version), version.EnsureVPrefix(existing.Version)) > 0
	if versionAdvanced {
		record := &models.VersionRecord{
			TemplateID: tpl.ID,
			Version:    tpl.Version,
			Changes:    ComputeChanges(existing, tpl),
			Breaking:   existing != nil && semver.Major(version.EnsureVPrefix(tpl.Version)) != semver.Major(version.EnsureVPrefix(existing.Version)),
			Deprecated: tpl.Status == models.StatusDeprecated,
		}
		if err := s.db.CreateVersion(ctx, record); err != nil {
			// The entry is already stored; a duplicate history row only
			// means a replayed ingest.
			if !isAlreadyExists(err) {
				return nil, err
			}
		} else {
			result.VersionCreated = true
		}
	}

	s.logger.Info("template stored",
		zap.String("id", tpl.ID),
		zap.String("version", tpl.Version),
		zap.Bool("created", result.Created),
	)
	return result, nil
}

func isAlreadyExists(err error) bool {
	return err != nil && strings.Contains(err.Error(), database.ErrAlreadyExists.Error())
}

// buildEntry runs both extractors under the configured timeout and
// assembles the repository entry. Extraction happens entirely before the
// write transaction.
func (s *catalogService) buildEntry(ctx context.Context, tpl *models.Template) (*models.RepositoryEntry, error) {
	extractCtx, cancel := context.WithTimeout(ctx, s.extractorTimeout)
	defer cancel()

	meta, err := s.metadata.ExtractMetadata(extractCtx, tpl)
	if err != nil {
		return nil, fmt.Errorf("metadata extraction failed for %q: %w", tpl.ID, err)
	}
	embeddings, err := s.embedder.GenerateEmbeddings(extractCtx, tpl)
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed for %q: %w", tpl.ID, err)
	}

	return &models.RepositoryEntry{
		TemplateID: tpl.ID,
		Template:   *tpl,
		Embeddings: *embeddings,
		Metadata:   *meta,
		SearchText: extract.BuildSearchText(tpl, meta),
		Checksum:   extract.PayloadChecksum(extract.BuildEmbeddingPayload(tpl)),
	}, nil
}

func (s *catalogService) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	return s.db.GetTemplate(ctx, id)
}

func (s *catalogService) ListTemplates(ctx context.Context, filter *models.TemplateFilter) ([]*models.Template, error) {
	return s.db.ListTemplates(ctx, filter)
}

func (s *catalogService) GetRepository(ctx context.Context, templateID string) (*models.RepositoryEntry, error) {
	return s.db.GetRepository(ctx, templateID)
}

func (s *catalogService) GetVersions(ctx context.Context, templateID string) ([]models.VersionRecord, error) {
	return s.db.GetVersions(ctx, templateID)
}

func (s *catalogService) ArchiveBySourceLocation(ctx context.Context, location string) (int, error) {
	templates, err := s.db.ListTemplates(ctx, nil)
	if err != nil {
		return 0, err
	}

	archived := 0
	for _, tpl := range templates {
		if tpl.Source.Kind != models.SourceFile || tpl.Source.Location != location {
			continue
		}
		if tpl.Status == models.StatusArchived {
			continue
		}
		patch := &models.Template{Status: models.StatusArchived}
		if _, err := s.db.UpdateTemplate(ctx, tpl.ID, patch); err != nil {
			return archived, err
		}
		archived++
		s.logger.Info("template archived after source removal",
			zap.String("id", tpl.ID),
			zap.String("location", location),
		)
	}
	return archived, nil
}

func (s *catalogService) Search(ctx context.Context, query *models.SearchQuery) ([]models.SearchHit, error) {
	return s.db.SearchTemplates(ctx, query)
}

func (s *catalogService) SemanticSearch(ctx context.Context, query *models.SearchQuery) ([]models.SearchHit, error) {
	if query == nil || strings.TrimSpace(query.Query) == "" {
		return nil, fmt.Errorf("%w: search query is required", database.ErrInvalidInput)
	}

	extractCtx, cancel := context.WithTimeout(ctx, s.extractorTimeout)
	defer cancel()

	// Embed the query text the same way template text is embedded.
	probe := &models.Template{Title: query.Query, Description: query.Query}
	embeddings, err := s.embedder.GenerateEmbeddings(extractCtx, probe)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	return s.db.SearchByEmbedding(ctx, embeddings.Combined, query)
}

func (s *catalogService) RecordUsage(ctx context.Context, event *models.UsageEvent) error {
	return s.db.RecordUsage(ctx, event)
}

func (s *catalogService) GetUsageStats(ctx context.Context, templateID string) (*models.UsageStats, error) {
	return s.db.GetUsageStats(ctx, templateID)
}

func (s *catalogService) ListDynamicTemplates(ctx context.Context) ([]*models.DynamicTemplate, error) {
	return s.db.ListDynamicTemplates(ctx)
}
