package database

import (
	"context"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/models"
)

// Compile-time interface checks for every backend.
var (
	_ Database = (*PostgresStore)(nil)
	_ Database = (*SQLiteStore)(nil)
	_ Database = (*FakeDatabase)(nil)
)

// FakeDatabase lets tests stub individual operations with function hooks.
// Unset hooks return zero values, which is the not-found answer for reads.
type FakeDatabase struct {
	CreateTemplateFn        func(ctx context.Context, tpl *models.Template) (*models.Template, error)
	UpdateTemplateFn        func(ctx context.Context, id string, patch *models.Template) (*models.Template, error)
	GetTemplateFn           func(ctx context.Context, id string) (*models.Template, error)
	DeleteTemplateFn        func(ctx context.Context, id string) error
	ListTemplatesFn         func(ctx context.Context, filter *models.TemplateFilter) ([]*models.Template, error)
	UpsertRepositoryFn      func(ctx context.Context, entry *models.RepositoryEntry) error
	GetRepositoryFn         func(ctx context.Context, templateID string) (*models.RepositoryEntry, error)
	UpdateRepositoryStatsFn func(ctx context.Context, templateID string, stats *models.EntryStats) error
	ResetStatsFn            func(ctx context.Context, templateID string) error
	SearchTemplatesFn       func(ctx context.Context, query *models.SearchQuery) ([]models.SearchHit, error)
	SearchByEmbeddingFn     func(ctx context.Context, vector []float32, query *models.SearchQuery) ([]models.SearchHit, error)
	CreateVersionFn         func(ctx context.Context, record *models.VersionRecord) error
	GetVersionsFn           func(ctx context.Context, templateID string) ([]models.VersionRecord, error)
	CreateDynamicTemplateFn func(ctx context.Context, dyn *models.DynamicTemplate) (*models.DynamicTemplate, error)
	UpdateDynamicTemplateFn func(ctx context.Context, id string, patch *models.DynamicTemplateUpdate) (*models.DynamicTemplate, error)
	GetDynamicTemplateFn    func(ctx context.Context, id string) (*models.DynamicTemplate, error)
	ListDynamicTemplatesFn  func(ctx context.Context) ([]*models.DynamicTemplate, error)
	UpdateRelationshipsFn   func(ctx context.Context, templateID string, rels []models.Relationship) error
	GetRelatedTemplatesFn   func(ctx context.Context, templateID string) ([]models.Relationship, error)
	RecordUsageFn           func(ctx context.Context, event *models.UsageEvent) error
	GetUsageStatsFn         func(ctx context.Context, templateID string) (*models.UsageStats, error)
	UpsertCategoryFn        func(ctx context.Context, cat *models.Category) (*models.Category, error)
	CreateSubcategoryFn     func(ctx context.Context, categoryID string, sub *models.Subcategory) error
	ListCategoriesFn        func(ctx context.Context) ([]models.Category, error)
	CloseFn                 func() error
}

func (f *FakeDatabase) CreateTemplate(ctx context.Context, tpl *models.Template) (*models.Template, error) {
	if f.CreateTemplateFn != nil {
		return f.CreateTemplateFn(ctx, tpl)
	}
	return tpl, nil
}

func (f *FakeDatabase) UpdateTemplate(ctx context.Context, id string, patch *models.Template) (*models.Template, error) {
	if f.UpdateTemplateFn != nil {
		return f.UpdateTemplateFn(ctx, id, patch)
	}
	return patch, nil
}

func (f *FakeDatabase) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	if f.GetTemplateFn != nil {
		return f.GetTemplateFn(ctx, id)
	}
	return nil, nil
}

func (f *FakeDatabase) DeleteTemplate(ctx context.Context, id string) error {
	if f.DeleteTemplateFn != nil {
		return f.DeleteTemplateFn(ctx, id)
	}
	return nil
}

func (f *FakeDatabase) ListTemplates(ctx context.Context, filter *models.TemplateFilter) ([]*models.Template, error) {
	if f.ListTemplatesFn != nil {
		return f.ListTemplatesFn(ctx, filter)
	}
	return nil, nil
}

func (f *FakeDatabase) UpsertRepository(ctx context.Context, entry *models.RepositoryEntry) error {
	if f.UpsertRepositoryFn != nil {
		return f.UpsertRepositoryFn(ctx, entry)
	}
	return nil
}

func (f *FakeDatabase) GetRepository(ctx context.Context, templateID string) (*models.RepositoryEntry, error) {
	if f.GetRepositoryFn != nil {
		return f.GetRepositoryFn(ctx, templateID)
	}
	return nil, nil
}

func (f *FakeDatabase) UpdateRepositoryStats(ctx context.Context, templateID string, stats *models.EntryStats) error {
	if f.UpdateRepositoryStatsFn != nil {
		return f.UpdateRepositoryStatsFn(ctx, templateID, stats)
	}
	return nil
}

func (f *FakeDatabase) ResetStats(ctx context.Context, templateID string) error {
	if f.ResetStatsFn != nil {
		return f.ResetStatsFn(ctx, templateID)
	}
	return nil
}

func (f *FakeDatabase) SearchTemplates(ctx context.Context, query *models.SearchQuery) ([]models.SearchHit, error) {
	if f.SearchTemplatesFn != nil {
		return f.SearchTemplatesFn(ctx, query)
	}
	return nil, nil
}

func (f *FakeDatabase) SearchByEmbedding(ctx context.Context, vector []float32, query *models.SearchQuery) ([]models.SearchHit, error) {
	if f.SearchByEmbeddingFn != nil {
		return f.SearchByEmbeddingFn(ctx, vector, query)
	}
	return nil, nil
}

func (f *FakeDatabase) CreateVersion(ctx context.Context, record *models.VersionRecord) error {
	if f.CreateVersionFn != nil {
		return f.CreateVersionFn(ctx, record)
	}
	return nil
}

func (f *FakeDatabase) GetVersions(ctx context.Context, templateID string) ([]models.VersionRecord, error) {
	if f.GetVersionsFn != nil {
		return f.GetVersionsFn(ctx, templateID)
	}
	return nil, nil
}

func (f *FakeDatabase) CreateDynamicTemplate(ctx context.Context, dyn *models.DynamicTemplate) (*models.DynamicTemplate, error) {
	if f.CreateDynamicTemplateFn != nil {
		return f.CreateDynamicTemplateFn(ctx, dyn)
	}
	return dyn, nil
}

func (f *FakeDatabase) UpdateDynamicTemplate(ctx context.Context, id string, patch *models.DynamicTemplateUpdate) (*models.DynamicTemplate, error) {
	if f.UpdateDynamicTemplateFn != nil {
		return f.UpdateDynamicTemplateFn(ctx, id, patch)
	}
	return nil, nil
}

func (f *FakeDatabase) GetDynamicTemplate(ctx context.Context, id string) (*models.DynamicTemplate, error) {
	if f.GetDynamicTemplateFn != nil {
		return f.GetDynamicTemplateFn(ctx, id)
	}
	return nil, nil
}

func (f *FakeDatabase) ListDynamicTemplates(ctx context.Context) ([]*models.DynamicTemplate, error) {
	if f.ListDynamicTemplatesFn != nil {
		return f.ListDynamicTemplatesFn(ctx)
	}
	return nil, nil
}

func (f *FakeDatabase) UpdateRelationships(ctx context.Context, templateID string, rels []models.Relationship) error {
	if f.UpdateRelationshipsFn != nil {
		return f.UpdateRelationshipsFn(ctx, templateID, rels)
	}
	return nil
}

func (f *FakeDatabase) GetRelatedTemplates(ctx context.Context, templateID string) ([]models.Relationship, error) {
	if f.GetRelatedTemplatesFn != nil {
		return f.GetRelatedTemplatesFn(ctx, templateID)
	}
	return nil, nil
}

func (f *FakeDatabase) RecordUsage(ctx context.Context, event *models.UsageEvent) error {
	if f.RecordUsageFn != nil {
		return f.RecordUsageFn(ctx, event)
	}
	return nil
}

func (f *FakeDatabase) GetUsageStats(ctx context.Context, templateID string) (*models.UsageStats, error) {
	if f.GetUsageStatsFn != nil {
		return f.GetUsageStatsFn(ctx, templateID)
	}
	return &models.UsageStats{TemplateID: templateID}, nil
}

func (f *FakeDatabase) UpsertCategory(ctx context.Context, cat *models.Category) (*models.Category, error) {
	if f.UpsertCategoryFn != nil {
		return f.UpsertCategoryFn(ctx, cat)
	}
	return cat, nil
}

func (f *FakeDatabase) CreateSubcategory(ctx context.Context, categoryID string, sub *models.Subcategory) error {
	if f.CreateSubcategoryFn != nil {
		return f.CreateSubcategoryFn(ctx, categoryID, sub)
	}
	return nil
}

func (f *FakeDatabase) ListCategories(ctx context.Context) ([]models.Category, error) {
	if f.ListCategoriesFn != nil {
		return f.ListCategoriesFn(ctx)
	}
	return nil, nil
}

func (f *FakeDatabase) Close() error {
	if f.CloseFn != nil {
		return f.CloseFn()
	}
	return nil
}
