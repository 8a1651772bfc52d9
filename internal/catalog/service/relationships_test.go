package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/database"
	"github.com/offbit-ai/zeal-catalog/internal/catalog/models"
)

func TestInferRelationshipsCategoryLinksCapped(t *testing.T) {
	var catalog []*models.Template
	for i := 0; i < 10; i++ {
		tpl := storableTemplate()
		tpl.ID = fmt.Sprintf("tools_%02d", i)
		tpl.Title = fmt.Sprintf("Tool %02d", i)
		catalog = append(catalog, tpl)
	}

	applied := make(map[string][]models.Relationship)
	db := &database.FakeDatabase{
		ListTemplatesFn: func(ctx context.Context, filter *models.TemplateFilter) ([]*models.Template, error) {
			return catalog, nil
		},
		UpdateRelationshipsFn: func(ctx context.Context, templateID string, rels []models.Relationship) error {
			applied[templateID] = rels
			return nil
		},
	}
	svc := newTestService(t, db)

	require.NoError(t, svc.InferRelationships(context.Background(), []string{"tools_00"}))

	rels := applied["tools_00"]
	require.NotEmpty(t, rels)

	commonlyUsed := 0
	for _, rel := range rels {
		if rel.Type == models.RelCommonlyUsedWith {
			commonlyUsed++
			assert.NotEqual(t, "tools_00", rel.TargetID)
		}
	}
	assert.Equal(t, 5, commonlyUsed)
}

func TestInferRelationshipsAlternativesByTitleOverlap(t *testing.T) {
	a := storableTemplate()
	a.ID = "tools_postgres-reader"
	a.Title = "Postgres Table Reader"

	b := storableTemplate()
	b.ID = "tools_postgres-writer"
	b.Title = "Postgres Table Writer"

	c := storableTemplate()
	c.ID = "tools_unrelated"
	c.Title = "Slack Notifier"

	applied := make(map[string][]models.Relationship)
	db := &database.FakeDatabase{
		ListTemplatesFn: func(ctx context.Context, filter *models.TemplateFilter) ([]*models.Template, error) {
			return []*models.Template{a, b, c}, nil
		},
		UpdateRelationshipsFn: func(ctx context.Context, templateID string, rels []models.Relationship) error {
			applied[templateID] = rels
			return nil
		},
	}
	svc := newTestService(t, db)

	require.NoError(t, svc.InferRelationships(context.Background(), []string{a.ID}))

	var alternatives []string
	for _, rel := range applied[a.ID] {
		if rel.Type == models.RelAlternatives {
			alternatives = append(alternatives, rel.TargetID)
		}
	}
	assert.Equal(t, []string{"tools_postgres-writer"}, alternatives)
}

func TestInferRelationshipsSkipsArchived(t *testing.T) {
	live := storableTemplate()
	live.ID = "tools_live"

	dead := storableTemplate()
	dead.ID = "tools_dead"
	dead.Status = models.StatusArchived

	applied := make(map[string][]models.Relationship)
	db := &database.FakeDatabase{
		ListTemplatesFn: func(ctx context.Context, filter *models.TemplateFilter) ([]*models.Template, error) {
			return []*models.Template{live, dead}, nil
		},
		UpdateRelationshipsFn: func(ctx context.Context, templateID string, rels []models.Relationship) error {
			applied[templateID] = rels
			return nil
		},
	}
	svc := newTestService(t, db)

	require.NoError(t, svc.InferRelationships(context.Background(), []string{"tools_live"}))

	for _, rel := range applied["tools_live"] {
		assert.NotEqual(t, "tools_dead", rel.TargetID)
	}
}

func TestInferRelationshipsNoIDsIsNoop(t *testing.T) {
	db := &database.FakeDatabase{
		ListTemplatesFn: func(ctx context.Context, filter *models.TemplateFilter) ([]*models.Template, error) {
			t.Fatal("should not list templates for an empty id set")
			return nil, nil
		},
	}
	svc := newTestService(t, db)

	require.NoError(t, svc.InferRelationships(context.Background(), nil))
}

func TestJaccard(t *testing.T) {
	a := map[string]bool{"postgres": true, "table": true, "reader": true}
	b := map[string]bool{"postgres": true, "table": true, "writer": true}
	assert.InDelta(t, 0.5, jaccard(a, b), 1e-9)

	assert.Equal(t, float64(0), jaccard(a, map[string]bool{}))
	assert.Equal(t, float64(1), jaccard(a, a))
}
