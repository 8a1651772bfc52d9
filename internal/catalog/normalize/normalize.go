// Package normalize maps heterogeneous template source shapes into the
// canonical Template model. A source document may hold a single definition,
// an array of definitions, or a named-export bag (map of export name to
// definition); each recognizable definition yields one Template.
package normalize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/models"
)

const defaultVersion = "1.0.0"

// Normalize converts a decoded raw definition (the result of JSON or YAML
// unmarshalling into any) into canonical templates. originFile is recorded
// as the source location of every produced template.
func Normalize(raw any, originFile string) ([]models.Template, error) {
	defs, err := collectDefinitions(raw)
	if err != nil {
		return nil, err
	}

	templates := make([]models.Template, 0, len(defs))
	for _, def := range defs {
		tpl, err := normalizeOne(def, originFile)
		if err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	return templates, nil
}

// collectDefinitions flattens the accepted source shapes into a list of
// definition maps. Named-export bags are walked in sorted key order so
// re-ingestion of an unchanged file yields a stable template order.
func collectDefinitions(raw any) ([]map[string]any, error) {
	switch v := raw.(type) {
	case []any:
		defs := make([]map[string]any, 0, len(v))
		for i, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("definition at index %d is not an object", i)
			}
			defs = append(defs, m)
		}
		return defs, nil
	case map[string]any:
		if looksLikeDefinition(v) {
			return []map[string]any{v}, nil
		}
		// Named-export bag: every value must itself be a definition.
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		defs := make([]map[string]any, 0, len(keys))
		for _, k := range keys {
			m, ok := v[k].(map[string]any)
			if !ok || !looksLikeDefinition(m) {
				return nil, fmt.Errorf("export %q is not a template definition", k)
			}
			defs = append(defs, m)
		}
		return defs, nil
	default:
		return nil, fmt.Errorf("unsupported definition shape %T", raw)
	}
}

// looksLikeDefinition reports whether a map carries the minimum fields of a
// single template definition rather than a bag of exports.
func looksLikeDefinition(m map[string]any) bool {
	if _, ok := m["title"]; ok {
		return true
	}
	if _, ok := m["id"]; ok {
		return true
	}
	return false
}

// rawTemplate is the permissive decoding target for one definition. Ports
// may be bare strings or full objects.
type rawTemplate struct {
	ID            string                               `json:"id"`
	Type          string                               `json:"type"`
	Version       string                               `json:"version"`
	Status        string                               `json:"status"`
	Title         string                               `json:"title"`
	Subtitle      string                               `json:"subtitle"`
	Description   string                               `json:"description"`
	Category      string                               `json:"category"`
	Subcategory   string                               `json:"subcategory"`
	Tags          []string                             `json:"tags"`
	Icon          string                               `json:"icon"`
	Variant       string                               `json:"variant"`
	Shape         string                               `json:"shape"`
	Size          string                               `json:"size"`
	Ports         []json.RawMessage                    `json:"ports"`
	Properties    map[string]models.PropertyDefinition `json:"properties"`
	PropertyRules []models.PropertyRule                `json:"propertyRules"`
}

func normalizeOne(def map[string]any, originFile string) (models.Template, error) {
	encoded, err := json.Marshal(def)
	if err != nil {
		return models.Template{}, fmt.Errorf("failed to re-encode definition: %w", err)
	}

	var raw rawTemplate
	if err := json.Unmarshal(encoded, &raw); err != nil {
		return models.Template{}, fmt.Errorf("failed to decode definition: %w", err)
	}

	tpl := models.Template{
		ID:            raw.ID,
		Type:          raw.Type,
		Version:       raw.Version,
		Status:        models.TemplateStatus(raw.Status),
		Title:         raw.Title,
		Subtitle:      raw.Subtitle,
		Description:   raw.Description,
		Category:      raw.Category,
		Subcategory:   raw.Subcategory,
		Tags:          raw.Tags,
		Icon:          raw.Icon,
		Variant:       raw.Variant,
		Shape:         raw.Shape,
		Size:          raw.Size,
		Properties:    raw.Properties,
		PropertyRules: raw.PropertyRules,
		Source: models.TemplateSource{
			Kind:     models.SourceFile,
			Location: originFile,
		},
	}

	if tpl.ID == "" {
		tpl.ID = SynthesizeID(tpl.Category, tpl.Title)
	}
	if tpl.Version == "" {
		tpl.Version = defaultVersion
	}
	if tpl.Status == "" {
		tpl.Status = models.StatusActive
	}

	ports, err := normalizePorts(raw.Ports)
	if err != nil {
		return models.Template{}, err
	}
	tpl.Ports = ports

	return tpl, nil
}

// normalizePorts expands each raw port entry. Bare strings become minimal
// Port records: the string is the generated id, direction is inferred from
// the name, and the side defaults to left for inputs and right for outputs.
func normalizePorts(raw []json.RawMessage) ([]models.Port, error) {
	ports := make([]models.Port, 0, len(raw))
	for i, entry := range raw {
		var name string
		if err := json.Unmarshal(entry, &name); err == nil {
			ports = append(ports, expandBarePort(name))
			continue
		}

		var port models.Port
		if err := json.Unmarshal(entry, &port); err != nil {
			return nil, fmt.Errorf("port at index %d is neither a string nor an object", i)
		}
		if port.ID == "" {
			port.ID = fmt.Sprintf("port-%d", i+1)
		}
		if port.Type == "" {
			port.Type = "input"
		}
		if port.Position == "" {
			port.Position = defaultSide(port.Type)
		}
		ports = append(ports, port)
	}
	if len(ports) == 0 {
		return nil, nil
	}
	return ports, nil
}

func expandBarePort(name string) models.Port {
	portType := "input"
	if strings.Contains(strings.ToLower(name), "out") {
		portType = "output"
	}
	return models.Port{
		ID:       name,
		Label:    name,
		Type:     portType,
		Position: defaultSide(portType),
	}
}

func defaultSide(portType string) string {
	if portType == "output" {
		return "right"
	}
	return "left"
}
