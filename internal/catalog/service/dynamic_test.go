package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/database"
	"github.com/offbit-ai/zeal-catalog/internal/catalog/models"
)

const weatherContract = `{
	"name": "Weather API",
	"category": "data-sources",
	"baseUrl": "https://api.weather.example",
	"endpoints": [
		{
			"name": "Current Conditions",
			"method": "get",
			"path": "/v1/current",
			"description": "Fetch current conditions",
			"parameters": [
				{"name": "city", "type": "string", "required": true},
				{"name": "units", "type": "string"}
			]
		},
		{
			"name": "Forecast",
			"method": "get",
			"path": "/v1/forecast"
		}
	]
}`

func newDynamicTestDB() *database.FakeDatabase {
	state := map[string]*models.DynamicTemplate{}
	return &database.FakeDatabase{
		CreateDynamicTemplateFn: func(ctx context.Context, dyn *models.DynamicTemplate) (*models.DynamicTemplate, error) {
			stored := *dyn
			if stored.ValidationStatus == "" {
				stored.ValidationStatus = models.DynamicPending
			}
			state[dyn.ID] = &stored
			return &stored, nil
		},
		UpdateDynamicTemplateFn: func(ctx context.Context, id string, patch *models.DynamicTemplateUpdate) (*models.DynamicTemplate, error) {
			existing := state[id]
			updated := *existing
			if patch.GeneratedTemplateID != nil {
				updated.GeneratedTemplateID = *patch.GeneratedTemplateID
			}
			if patch.GeneratedAt != nil {
				updated.GeneratedAt = patch.GeneratedAt
			}
			if patch.ValidationStatus != nil {
				updated.ValidationStatus = *patch.ValidationStatus
			}
			state[id] = &updated
			return &updated, nil
		},
	}
}

func TestRegisterDynamicTemplateFromAPIContract(t *testing.T) {
	db := newDynamicTestDB()

	var upserted []string
	db.UpsertRepositoryFn = func(ctx context.Context, entry *models.RepositoryEntry) error {
		upserted = append(upserted, entry.TemplateID)
		return nil
	}

	svc := newTestService(t, db)

	dyn := &models.DynamicTemplate{
		ID:               "dyn-weather",
		Name:             "Weather API",
		SourceKind:       models.DynamicSourceAPI,
		SourceDefinition: weatherContract,
	}

	updated, templates, err := svc.RegisterDynamicTemplate(context.Background(), dyn)
	require.NoError(t, err)
	require.Len(t, templates, 2)

	assert.Equal(t, models.DynamicValid, updated.ValidationStatus)
	assert.NotNil(t, updated.GeneratedAt)
	assert.Equal(t, templates[0].ID, updated.GeneratedTemplateID)

	first := templates[0]
	assert.Equal(t, "data-sources_weather-api-current-conditions", first.ID)
	assert.Equal(t, models.StatusDraft, first.Status)
	assert.Equal(t, "GET /v1/current", first.Subtitle)
	assert.Equal(t, models.SourceGenerated, first.Source.Kind)
	require.Len(t, first.Ports, 2)
	require.Contains(t, first.Properties, "city")
	assert.True(t, first.Properties["city"].Validation.Required)

	assert.Equal(t, []string{
		"data-sources_weather-api-current-conditions",
		"data-sources_weather-api-forecast",
	}, upserted)
}

func TestRegisterDynamicTemplateInvalidContract(t *testing.T) {
	db := newDynamicTestDB()
	db.UpsertRepositoryFn = func(ctx context.Context, entry *models.RepositoryEntry) error {
		t.Fatal("invalid contracts must not produce templates")
		return nil
	}

	svc := newTestService(t, db)

	dyn := &models.DynamicTemplate{
		ID:               "dyn-bad",
		Name:             "Broken",
		SourceKind:       models.DynamicSourceAPI,
		SourceDefinition: `{"endpoints": []}`,
	}

	updated, templates, err := svc.RegisterDynamicTemplate(context.Background(), dyn)
	require.NoError(t, err)
	assert.Nil(t, templates)
	assert.Equal(t, models.DynamicInvalid, updated.ValidationStatus)
}

func TestRegisterDynamicTemplateScriptDeclaration(t *testing.T) {
	db := newDynamicTestDB()
	db.UpsertRepositoryFn = func(ctx context.Context, entry *models.RepositoryEntry) error {
		return nil
	}

	svc := newTestService(t, db)

	dyn := &models.DynamicTemplate{
		ID:         "dyn-script",
		Name:       "Custom Transformer",
		SourceKind: models.DynamicSourceScript,
		SourceDefinition: `{
			"title": "Custom Transformer",
			"category": "scripting",
			"ports": ["in", "out"]
		}`,
	}

	updated, templates, err := svc.RegisterDynamicTemplate(context.Background(), dyn)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, models.DynamicValid, updated.ValidationStatus)
	assert.Equal(t, models.SourceScript, templates[0].Source.Kind)
	assert.Equal(t, "dyn-script", templates[0].Source.Location)
}

func TestRegisterDynamicTemplateRequiresDefinition(t *testing.T) {
	svc := newTestService(t, &database.FakeDatabase{})
	_, _, err := svc.RegisterDynamicTemplate(context.Background(), &models.DynamicTemplate{ID: "x"})
	assert.ErrorIs(t, err, database.ErrInvalidInput)
}
