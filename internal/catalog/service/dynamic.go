package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/database"
	"github.com/offbit-ai/zeal-catalog/internal/catalog/models"
	"github.com/offbit-ai/zeal-catalog/internal/catalog/normalize"
)

// apiContract is the declarative description a dynamic API source carries.
// It is data, never executed; one catalog template is synthesized per
// endpoint.
type apiContract struct {
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description" yaml:"description"`
	Category    string             `json:"category" yaml:"category"`
	BaseURL     string             `json:"baseUrl" yaml:"baseUrl"`
	Endpoints   []contractEndpoint `json:"endpoints" yaml:"endpoints"`
}

type contractEndpoint struct {
	Name        string              `json:"name" yaml:"name"`
	Method      string              `json:"method" yaml:"method"`
	Path        string              `json:"path" yaml:"path"`
	Description string              `json:"description" yaml:"description"`
	Parameters  []contractParameter `json:"parameters" yaml:"parameters"`
}

type contractParameter struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Required    bool   `json:"required" yaml:"required"`
	Description string `json:"description" yaml:"description"`
}

// RegisterDynamicTemplate stores the contract, synthesizes templates from
// it and records the validation result. Script sources must declare their
// template output as data; nothing is ever imported or executed.
func (s *catalogService) RegisterDynamicTemplate(ctx context.Context, dyn *models.DynamicTemplate) (*models.DynamicTemplate, []*models.Template, error) {
	if dyn == nil || dyn.SourceDefinition == "" {
		return nil, nil, fmt.Errorf("%w: source definition is required", database.ErrInvalidInput)
	}

	stored, err := s.db.CreateDynamicTemplate(ctx, dyn)
	if err != nil {
		return nil, nil, err
	}

	templates, genErr := s.generateTemplates(stored)
	if genErr == nil {
		for _, tpl := range templates {
			if err := s.validator.Validate(tpl); err != nil {
				genErr = err
				break
			}
		}
	}

	if genErr != nil {
		s.logger.Warn("dynamic template generation failed",
			zap.String("id", stored.ID),
			zap.Error(genErr),
		)
		invalid := models.DynamicInvalid
		updated, err := s.db.UpdateDynamicTemplate(ctx, stored.ID, &models.DynamicTemplateUpdate{
			ValidationStatus: &invalid,
		})
		if err != nil {
			return nil, nil, err
		}
		return updated, nil, nil
	}

	for _, tpl := range templates {
		if _, err := s.UpsertTemplate(ctx, tpl); err != nil {
			return nil, nil, err
		}
	}

	now := time.Now().UTC()
	valid := models.DynamicValid
	firstID := ""
	if len(templates) > 0 {
		firstID = templates[0].ID
	}
	updated, err := s.db.UpdateDynamicTemplate(ctx, stored.ID, &models.DynamicTemplateUpdate{
		GeneratedTemplateID: &firstID,
		GeneratedAt:         &now,
		ValidationStatus:    &valid,
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("dynamic templates generated",
		zap.String("id", stored.ID),
		zap.Int("templates", len(templates)),
	)
	return updated, templates, nil
}

func (s *catalogService) generateTemplates(dyn *models.DynamicTemplate) ([]*models.Template, error) {
	switch dyn.SourceKind {
	case models.DynamicSourceAPI:
		return templatesFromContract(dyn)
	case models.DynamicSourceScript:
		// A script source declares its template output as data.
		raw, err := parseDefinition(dyn.SourceDefinition)
		if err != nil {
			return nil, err
		}
		normalized, err := normalize.Normalize(raw, "dynamic:"+dyn.ID)
		if err != nil {
			return nil, err
		}
		templates := make([]*models.Template, 0, len(normalized))
		for i := range normalized {
			normalized[i].Source = models.TemplateSource{Kind: models.SourceScript, Location: dyn.ID}
			templates = append(templates, &normalized[i])
		}
		return templates, nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", dyn.SourceKind)
	}
}

func parseDefinition(definition string) (any, error) {
	trimmed := strings.TrimSpace(definition)
	var raw any
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
			return nil, fmt.Errorf("failed to parse source definition: %w", err)
		}
		return raw, nil
	}
	if err := yaml.Unmarshal([]byte(definition), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse source definition: %w", err)
	}
	return raw, nil
}

func templatesFromContract(dyn *models.DynamicTemplate) ([]*models.Template, error) {
	var contract apiContract
	trimmed := strings.TrimSpace(dyn.SourceDefinition)
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal([]byte(trimmed), &contract); err != nil {
			return nil, fmt.Errorf("failed to parse API contract: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(dyn.SourceDefinition), &contract); err != nil {
			return nil, fmt.Errorf("failed to parse API contract: %w", err)
		}
	}

	if len(contract.Endpoints) == 0 {
		return nil, fmt.Errorf("API contract declares no endpoints")
	}

	category := contract.Category
	if category == "" {
		category = "tools"
	}

	var templates []*models.Template
	for _, endpoint := range contract.Endpoints {
		if endpoint.Name == "" {
			return nil, fmt.Errorf("API contract endpoint is missing a name")
		}

		title := contract.Name + " " + endpoint.Name
		tpl := &models.Template{
			ID:          normalize.SynthesizeID(category, title),
			Type:        "api-operation",
			Version:     "1.0.0",
			Status:      models.StatusDraft,
			Title:       title,
			Subtitle:    strings.ToUpper(endpoint.Method) + " " + endpoint.Path,
			Description: firstNonEmpty(endpoint.Description, contract.Description),
			Category:    category,
			Tags:        []string{"api", "generated"},
			Ports: []models.Port{
				{ID: "request", Label: "Request", Type: "input", Position: "left", DataType: "object"},
				{ID: "response", Label: "Response", Type: "output", Position: "right", DataType: "object"},
			},
			Properties: propertiesFromParameters(endpoint.Parameters),
			Source:     models.TemplateSource{Kind: models.SourceGenerated, Location: dyn.ID},
		}
		templates = append(templates, tpl)
	}
	return templates, nil
}

func propertiesFromParameters(params []contractParameter) map[string]models.PropertyDefinition {
	if len(params) == 0 {
		return nil
	}
	props := make(map[string]models.PropertyDefinition, len(params))
	for _, param := range params {
		paramType := param.Type
		if paramType == "" {
			paramType = "string"
		}
		props[param.Name] = models.PropertyDefinition{
			Type:        paramType,
			Label:       param.Name,
			Description: param.Description,
			Validation:  &models.PropertyValidation{Required: param.Required},
		}
	}
	return props
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
