package database

import (
	"time"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/models"
)

// mergeTemplate applies a partial update over an existing template. Both
// backends use this helper so merge semantics cannot drift: only non-zero
// patch fields replace stored values, ports/properties/rules and tags are
// replaced wholesale when supplied, and identity fields never change.
func mergeTemplate(existing *models.Template, patch *models.Template) *models.Template {
	merged := *existing

	if patch.Type != "" {
		merged.Type = patch.Type
	}
	if patch.Version != "" {
		merged.Version = patch.Version
	}
	if patch.Status != "" {
		merged.Status = patch.Status
	}
	if patch.Title != "" {
		merged.Title = patch.Title
	}
	if patch.Subtitle != "" {
		merged.Subtitle = patch.Subtitle
	}
	if patch.Description != "" {
		merged.Description = patch.Description
	}
	if patch.Category != "" {
		merged.Category = patch.Category
	}
	if patch.Subcategory != "" {
		merged.Subcategory = patch.Subcategory
	}
	if patch.Tags != nil {
		merged.Tags = patch.Tags
	}
	if patch.Icon != "" {
		merged.Icon = patch.Icon
	}
	if patch.Variant != "" {
		merged.Variant = patch.Variant
	}
	if patch.Shape != "" {
		merged.Shape = patch.Shape
	}
	if patch.Size != "" {
		merged.Size = patch.Size
	}
	if patch.Ports != nil {
		merged.Ports = patch.Ports
	}
	if patch.Properties != nil {
		merged.Properties = patch.Properties
	}
	if patch.PropertyRules != nil {
		merged.PropertyRules = patch.PropertyRules
	}
	if patch.Source.Kind != "" {
		merged.Source = patch.Source
	}
	if patch.UpdatedBy != "" {
		merged.UpdatedBy = patch.UpdatedBy
	}
	merged.UpdatedAt = time.Now().UTC()

	return &merged
}

// applyDynamicUpdate patches only the supplied fields of a dynamic
// template.
func applyDynamicUpdate(existing *models.DynamicTemplate, patch *models.DynamicTemplateUpdate) *models.DynamicTemplate {
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
	updated.UpdatedAt = time.Now().UTC()
	return &updated
}

// dedupeRelationships drops repeated (target, type) pairs while keeping the
// first occurrence's order.
func dedupeRelationships(rels []models.Relationship) []models.Relationship {
	seen := make(map[models.Relationship]bool, len(rels))
	out := make([]models.Relationship, 0, len(rels))
	for _, rel := range rels {
		if seen[rel] {
			continue
		}
		seen[rel] = true
		out = append(out, rel)
	}
	return out
}
