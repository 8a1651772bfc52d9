package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/models"
)

func baseTemplate() *models.Template {
	return &models.Template{
		ID:          "tools_http-client",
		Version:     "1.0.0",
		Status:      models.StatusActive,
		Title:       "HTTP Client",
		Description: "Makes requests",
		Category:    "tools",
		Tags:        []string{"http"},
		Ports: []models.Port{
			{ID: "in", Type: "input"},
			{ID: "out", Type: "output"},
		},
		Properties: map[string]models.PropertyDefinition{
			"url": {Type: "string"},
		},
	}
}

func TestHasChangesIdenticalTemplates(t *testing.T) {
	a := baseTemplate()
	b := baseTemplate()
	assert.False(t, HasChanges(a, b))
}

func TestHasChangesDetectsEachField(t *testing.T) {
	mutations := map[string]func(*models.Template){
		"version":     func(tpl *models.Template) { tpl.Version = "1.1.0" },
		"title":       func(tpl *models.Template) { tpl.Title = "Other" },
		"description": func(tpl *models.Template) { tpl.Description = "Different" },
		"status":      func(tpl *models.Template) { tpl.Status = models.StatusDeprecated },
		"category":    func(tpl *models.Template) { tpl.Category = "media" },
		"tags":        func(tpl *models.Template) { tpl.Tags = []string{"http", "rest"} },
		"ports":       func(tpl *models.Template) { tpl.Ports = tpl.Ports[:1] },
		"properties":  func(tpl *models.Template) { delete(tpl.Properties, "url") },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			changed := baseTemplate()
			mutate(changed)
			assert.True(t, HasChanges(baseTemplate(), changed))
		})
	}
}

func TestHasChangesIgnoresAuditFields(t *testing.T) {
	a := baseTemplate()
	b := baseTemplate()
	b.UpdatedBy = "someone-else"
	assert.False(t, HasChanges(a, b))
}

func TestComputeChangesNewTemplate(t *testing.T) {
	changes := ComputeChanges(nil, baseTemplate())
	assert.Len(t, changes, 1)
	assert.Equal(t, models.ChangeAdded, changes[0].Type)
}

func TestComputeChangesFieldLevel(t *testing.T) {
	old := baseTemplate()
	updated := baseTemplate()
	updated.Version = "2.0.0"
	updated.Title = "HTTP Client v2"
	updated.Ports = append(updated.Ports, models.Port{ID: "error", Type: "output"})
	delete(updated.Properties, "url")

	changes := ComputeChanges(old, updated)

	byField := make(map[string]models.TemplateChange)
	for _, change := range changes {
		byField[change.Field] = change
	}

	assert.Equal(t, models.ChangeModified, byField["version"].Type)
	assert.Equal(t, "1.0.0", byField["version"].From)
	assert.Equal(t, "2.0.0", byField["version"].To)
	assert.Equal(t, models.ChangeModified, byField["title"].Type)
	assert.Equal(t, models.ChangeAdded, byField["ports.error"].Type)
	assert.Equal(t, models.ChangeRemoved, byField["properties.url"].Type)
}

func TestComputeChangesDeprecation(t *testing.T) {
	old := baseTemplate()
	updated := baseTemplate()
	updated.Status = models.StatusDeprecated

	changes := ComputeChanges(old, updated)
	found := false
	for _, change := range changes {
		if change.Field == "status" {
			assert.Equal(t, models.ChangeDeprecated, change.Type)
			found = true
		}
	}
	assert.True(t, found, "expected a status change entry")
}
