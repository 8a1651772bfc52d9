package service

import (
	"encoding/json"
	"sort"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/models"
)

// HasChanges reports whether the incoming template differs from the stored
// one on any field that matters for re-extraction: version, title,
// description, status, category placement, tags, ports or properties.
func HasChanges(existing, incoming *models.Template) bool {
	if existing == nil {
		return true
	}
	if existing.Version != incoming.Version ||
		existing.Title != incoming.Title ||
		existing.Subtitle != incoming.Subtitle ||
		existing.Description != incoming.Description ||
		existing.Status != incoming.Status ||
		existing.Category != incoming.Category ||
		existing.Subcategory != incoming.Subcategory {
		return true
	}
	return serialize(existing.Tags) != serialize(incoming.Tags) ||
		serialize(existing.Ports) != serialize(incoming.Ports) ||
		serialize(existing.Properties) != serialize(incoming.Properties) ||
		serialize(existing.PropertyRules) != serialize(incoming.PropertyRules)
}

// serialize gives a comparable form. Map keys sort deterministically under
// encoding/json.
func serialize(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// ComputeChanges produces the typed change list recorded in version
// history. A nil existing template yields a single "added" change.
func ComputeChanges(existing, incoming *models.Template) []models.TemplateChange {
	if existing == nil {
		return []models.TemplateChange{{Type: models.ChangeAdded, Field: "template", To: incoming.Version}}
	}

	var changes []models.TemplateChange

	scalar := func(field, from, to string) {
		if from == to {
			return
		}
		changes = append(changes, models.TemplateChange{
			Type: models.ChangeModified, Field: field, From: from, To: to,
		})
	}

	scalar("version", existing.Version, incoming.Version)
	scalar("title", existing.Title, incoming.Title)
	scalar("subtitle", existing.Subtitle, incoming.Subtitle)
	scalar("description", existing.Description, incoming.Description)
	scalar("category", existing.Category, incoming.Category)
	scalar("subcategory", existing.Subcategory, incoming.Subcategory)

	if existing.Status != incoming.Status {
		changeType := models.ChangeModified
		if incoming.Status == models.StatusDeprecated {
			changeType = models.ChangeDeprecated
		}
		changes = append(changes, models.TemplateChange{
			Type: changeType, Field: "status",
			From: string(existing.Status), To: string(incoming.Status),
		})
	}

	changes = append(changes, diffPorts(existing.Ports, incoming.Ports)...)
	changes = append(changes, diffProperties(existing.Properties, incoming.Properties)...)

	if serialize(existing.Tags) != serialize(incoming.Tags) {
		changes = append(changes, models.TemplateChange{
			Type: models.ChangeModified, Field: "tags",
			From: serialize(existing.Tags), To: serialize(incoming.Tags),
		})
	}

	return changes
}

func diffPorts(oldPorts, newPorts []models.Port) []models.TemplateChange {
	var changes []models.TemplateChange

	oldByID := make(map[string]models.Port, len(oldPorts))
	for _, p := range oldPorts {
		oldByID[p.ID] = p
	}
	newByID := make(map[string]models.Port, len(newPorts))
	for _, p := range newPorts {
		newByID[p.ID] = p
	}

	for _, p := range newPorts {
		old, ok := oldByID[p.ID]
		if !ok {
			changes = append(changes, models.TemplateChange{
				Type: models.ChangeAdded, Field: "ports." + p.ID,
			})
			continue
		}
		if serialize(old) != serialize(p) {
			changes = append(changes, models.TemplateChange{
				Type: models.ChangeModified, Field: "ports." + p.ID,
			})
		}
	}
	for _, p := range oldPorts {
		if _, ok := newByID[p.ID]; !ok {
			changes = append(changes, models.TemplateChange{
				Type: models.ChangeRemoved, Field: "ports." + p.ID,
			})
		}
	}
	return changes
}

func diffProperties(oldProps, newProps map[string]models.PropertyDefinition) []models.TemplateChange {
	var changes []models.TemplateChange

	for _, name := range sortedKeys(newProps) {
		def := newProps[name]
		old, ok := oldProps[name]
		if !ok {
			changes = append(changes, models.TemplateChange{
				Type: models.ChangeAdded, Field: "properties." + name,
			})
			continue
		}
		if serialize(old) != serialize(def) {
			changes = append(changes, models.TemplateChange{
				Type: models.ChangeModified, Field: "properties." + name,
			})
		}
	}
	for _, name := range sortedKeys(oldProps) {
		if _, ok := newProps[name]; !ok {
			changes = append(changes, models.TemplateChange{
				Type: models.ChangeRemoved, Field: "properties." + name,
			})
		}
	}
	return changes
}

func sortedKeys(m map[string]models.PropertyDefinition) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
