package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/models"
)

func TestMergeTemplateNonZeroFieldsWin(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	existing := &models.Template{
		ID:          "tools_http-client",
		Version:     "1.0.0",
		Status:      models.StatusActive,
		Title:       "HTTP Client",
		Description: "Makes requests",
		Category:    "tools",
		Tags:        []string{"http"},
		CreatedAt:   created,
	}

	merged := mergeTemplate(existing, &models.Template{
		Version: "1.1.0",
		Title:   "HTTP Client v2",
	})

	assert.Equal(t, "tools_http-client", merged.ID)
	assert.Equal(t, "1.1.0", merged.Version)
	assert.Equal(t, "HTTP Client v2", merged.Title)
	assert.Equal(t, "Makes requests", merged.Description)
	assert.Equal(t, []string{"http"}, merged.Tags)
	assert.Equal(t, created, merged.CreatedAt)
	assert.True(t, merged.UpdatedAt.After(created))

	// The stored record is untouched.
	assert.Equal(t, "1.0.0", existing.Version)
}

func TestMergeTemplateCollectionsReplacedWholesale(t *testing.T) {
	existing := &models.Template{
		ID:    "tools_a",
		Ports: []models.Port{{ID: "in", Type: "input"}, {ID: "out", Type: "output"}},
		Tags:  []string{"a", "b"},
		Properties: map[string]models.PropertyDefinition{
			"url": {Type: "string"},
		},
	}

	merged := mergeTemplate(existing, &models.Template{
		Ports: []models.Port{{ID: "only", Type: "input"}},
		Tags:  []string{},
	})

	assert.Len(t, merged.Ports, 1)
	assert.Equal(t, "only", merged.Ports[0].ID)
	// Empty but non-nil replaces.
	assert.Len(t, merged.Tags, 0)
	// Nil leaves stored properties alone.
	assert.Len(t, merged.Properties, 1)
}

func TestApplyDynamicUpdate(t *testing.T) {
	existing := &models.DynamicTemplate{
		ID:               "dyn-1",
		ValidationStatus: models.DynamicPending,
	}

	now := time.Now().UTC()
	valid := models.DynamicValid
	generated := "tools_generated"

	updated := applyDynamicUpdate(existing, &models.DynamicTemplateUpdate{
		GeneratedTemplateID: &generated,
		GeneratedAt:         &now,
		ValidationStatus:    &valid,
	})

	assert.Equal(t, "tools_generated", updated.GeneratedTemplateID)
	assert.Equal(t, models.DynamicValid, updated.ValidationStatus)
	assert.Equal(t, &now, updated.GeneratedAt)

	// A nil field leaves the stored value.
	partial := applyDynamicUpdate(updated, &models.DynamicTemplateUpdate{})
	assert.Equal(t, "tools_generated", partial.GeneratedTemplateID)
	assert.Equal(t, models.DynamicValid, partial.ValidationStatus)
}

func TestDedupeRelationships(t *testing.T) {
	rels := []models.Relationship{
		{TargetID: "a", Type: models.RelCommonlyUsedWith},
		{TargetID: "b", Type: models.RelAlternatives},
		{TargetID: "a", Type: models.RelCommonlyUsedWith},
		{TargetID: "a", Type: models.RelAlternatives},
	}

	deduped := dedupeRelationships(rels)
	assert.Len(t, deduped, 3)
	assert.Equal(t, "a", deduped[0].TargetID)
	assert.Equal(t, "b", deduped[1].TargetID)
}
