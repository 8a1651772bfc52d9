package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/models"
	"github.com/offbit-ai/zeal-catalog/internal/catalog/normalize"
)

// ParseFile reads a definition file and normalizes it into canonical
// templates. JSON and YAML are the only accepted formats; executable
// sources never enter this path. Templates without a category inherit the
// one inferred from the file name.
func ParseFile(path string) ([]models.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var raw any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		raw = normalizeYAML(raw)
	default:
		return nil, fmt.Errorf("unsupported definition format %q", filepath.Ext(path))
	}

	templates, err := normalize.Normalize(raw, path)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize %s: %w", path, err)
	}

	fileCategory := CategoryForFile(path)
	for i := range templates {
		if templates[i].Category != "" {
			continue
		}
		templates[i].Category = fileCategory
		// The id was synthesized before the category was known.
		if strings.HasPrefix(templates[i].ID, "uncategorized_") {
			templates[i].ID = normalize.SynthesizeID(fileCategory, templates[i].Title)
		}
	}
	return templates, nil
}

// normalizeYAML rewrites map[any]any nodes into map[string]any so YAML
// documents decode into the same shape JSON does.
func normalizeYAML(raw any) any {
	switch v := raw.(type) {
	case map[any]any:
		converted := make(map[string]any, len(v))
		for key, value := range v {
			converted[fmt.Sprint(key)] = normalizeYAML(value)
		}
		return converted
	case map[string]any:
		for key, value := range v {
			v[key] = normalizeYAML(value)
		}
		return v
	case []any:
		for i, item := range v {
			v[i] = normalizeYAML(item)
		}
		return v
	default:
		return raw
	}
}
