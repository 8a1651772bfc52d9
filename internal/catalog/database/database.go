// Package database is the persistence layer of the template catalog: one
// interface with two interchangeable backends (PostgreSQL via pgx, SQLite
// via modernc.org/sqlite) sharing identical semantics. Business rules live
// in the service layer above both backends so behavior cannot drift.
package database

import (
	"context"
	"errors"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/models"
)

// Common database errors.
var (
	// ErrNotFound is returned by writes that target a missing record.
	// Not-found reads return a nil result instead.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists is returned on duplicate identity during create.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrInvalidInput is returned when the caller supplied an unusable value.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidVersion is returned when a version would move backwards.
	ErrInvalidVersion = errors.New("invalid version")
	// ErrDatabase wraps backend I/O failures that are safe to retry.
	ErrDatabase = errors.New("database error")
)

// Database is the repository store contract. Callers must be able to swap
// backends without behavior change.
//
// Failure semantics: not-found reads return (nil, nil); multi-statement
// operations (UpsertRepository, UpdateRelationships, RecordUsage) commit
// fully or roll back fully.
type Database interface {
	// Template CRUD. UpdateTemplate merges the patch over the existing
	// record; identity fields (id) are immutable.
	CreateTemplate(ctx context.Context, tpl *models.Template) (*models.Template, error)
	UpdateTemplate(ctx context.Context, id string, patch *models.Template) (*models.Template, error)
	GetTemplate(ctx context.Context, id string) (*models.Template, error)
	DeleteTemplate(ctx context.Context, id string) error
	ListTemplates(ctx context.Context, filter *models.TemplateFilter) ([]*models.Template, error)

	// UpsertRepository is the central write path: template row, repository
	// entry and search blob are written as a single unit. On conflict every
	// mutable field is overwritten; stats and created-at are preserved.
	UpsertRepository(ctx context.Context, entry *models.RepositoryEntry) error
	GetRepository(ctx context.Context, templateID string) (*models.RepositoryEntry, error)
	UpdateRepositoryStats(ctx context.Context, templateID string, stats *models.EntryStats) error
	ResetStats(ctx context.Context, templateID string) error

	// SearchTemplates is the lexical path: ties break by most-recent
	// update. SearchByEmbedding is the vector path: similarity is
	// 1 - cosine distance, ties break by template id. Both honor the same
	// filter and pagination contract.
	SearchTemplates(ctx context.Context, query *models.SearchQuery) ([]models.SearchHit, error)
	SearchByEmbedding(ctx context.Context, vector []float32, query *models.SearchQuery) ([]models.SearchHit, error)

	// Append-only version history, newest first.
	CreateVersion(ctx context.Context, record *models.VersionRecord) error
	GetVersions(ctx context.Context, templateID string) ([]models.VersionRecord, error)

	// Dynamic template lifecycle. UpdateDynamicTemplate only touches the
	// fields supplied in the patch.
	CreateDynamicTemplate(ctx context.Context, dyn *models.DynamicTemplate) (*models.DynamicTemplate, error)
	UpdateDynamicTemplate(ctx context.Context, id string, patch *models.DynamicTemplateUpdate) (*models.DynamicTemplate, error)
	GetDynamicTemplate(ctx context.Context, id string) (*models.DynamicTemplate, error)
	ListDynamicTemplates(ctx context.Context) ([]*models.DynamicTemplate, error)

	// UpdateRelationships has replace-all semantics: every outgoing edge is
	// deleted and the supplied set re-inserted in one transaction.
	UpdateRelationships(ctx context.Context, templateID string, rels []models.Relationship) error
	GetRelatedTemplates(ctx context.Context, templateID string) ([]models.Relationship, error)

	// RecordUsage appends an immutable event and atomically bumps the
	// entry's counters; ErrNotFound when no repository entry exists for
	// the id. GetUsageStats returns zero-valued stats (not an error) when
	// no usage exists.
	RecordUsage(ctx context.Context, event *models.UsageEvent) error
	GetUsageStats(ctx context.Context, templateID string) (*models.UsageStats, error)

	// Category taxonomy. UpsertCategory is keyed by unique name and
	// preserves the id of an existing row. CreateSubcategory returns
	// ErrAlreadyExists on duplicate (category id, name).
	UpsertCategory(ctx context.Context, cat *models.Category) (*models.Category, error)
	CreateSubcategory(ctx context.Context, categoryID string, sub *models.Subcategory) error
	ListCategories(ctx context.Context) ([]models.Category, error)

	Close() error
}
