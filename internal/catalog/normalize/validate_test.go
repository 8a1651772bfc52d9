package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/models"
)

func validTemplate() *models.Template {
	return &models.Template{
		ID:       "tools_http-client",
		Title:    "HTTP Client",
		Category: "tools",
		Status:   models.StatusActive,
		Ports: []models.Port{
			{ID: "in", Type: "input"},
			{ID: "out", Type: "output"},
		},
	}
}

func TestValidateAcceptsCanonicalTemplate(t *testing.T) {
	v := &Validator{}
	assert.NoError(t, v.Validate(validTemplate()))
}

func TestValidateCollectsEveryIssue(t *testing.T) {
	v := &Validator{}
	tpl := &models.Template{
		Status: "bogus",
		Ports: []models.Port{
			{ID: "dup", Type: "input"},
			{ID: "dup", Type: "sideways"},
		},
	}

	err := v.Validate(tpl)
	require.Error(t, err)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	// id, title, category, status, duplicate port id, unknown port type
	assert.Len(t, vErr.Issues, 6)
}

func TestValidateStrictRequiresPorts(t *testing.T) {
	v := &Validator{Strict: true}
	tpl := validTemplate()
	tpl.Ports = nil

	err := v.Validate(tpl)
	assert.Error(t, err)
}

func TestValidateStrictPortSchemaMustResolve(t *testing.T) {
	v := &Validator{Strict: true}
	tpl := validTemplate()
	tpl.Ports[0].Schema = "missing"

	err := v.Validate(tpl)
	require.Error(t, err)

	tpl.Properties = map[string]models.PropertyDefinition{
		"missing": {Type: "string"},
	}
	assert.NoError(t, v.Validate(tpl))
}
