package normalize

import (
	"fmt"
	"strings"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/models"
)

// ValidationError reports why a template was rejected before storage.
type ValidationError struct {
	TemplateID string
	Issues     []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("template %q failed validation: %s", e.TemplateID, strings.Join(e.Issues, "; "))
}

// Validator enforces the canonical template rules. In strict mode a
// template must declare at least one port, and every port schema reference
// must resolve to a declared property.
type Validator struct {
	Strict bool
}

// Validate returns nil when the template is storable, or a
// *ValidationError describing every violated rule.
func (v *Validator) Validate(tpl *models.Template) error {
	var issues []string

	if tpl.ID == "" {
		issues = append(issues, "id must not be empty")
	}
	if tpl.Title == "" {
		issues = append(issues, "title must not be empty")
	}
	if tpl.Category == "" {
		issues = append(issues, "category must not be empty")
	}
	if !models.ValidStatus(tpl.Status) {
		issues = append(issues, fmt.Sprintf("unknown status %q", tpl.Status))
	}

	seen := make(map[string]bool, len(tpl.Ports))
	for _, port := range tpl.Ports {
		if seen[port.ID] {
			issues = append(issues, fmt.Sprintf("duplicate port id %q", port.ID))
		}
		seen[port.ID] = true
		if port.Type != "input" && port.Type != "output" {
			issues = append(issues, fmt.Sprintf("port %q has unknown type %q", port.ID, port.Type))
		}
	}

	if v.Strict {
		if len(tpl.Ports) == 0 {
			issues = append(issues, "strict mode requires at least one port")
		}
		for _, port := range tpl.Ports {
			if port.Schema == "" {
				continue
			}
			if _, ok := tpl.Properties[port.Schema]; !ok {
				issues = append(issues, fmt.Sprintf("port %q references undeclared property %q", port.ID, port.Schema))
			}
		}
	}

	if len(issues) > 0 {
		return &ValidationError{TemplateID: tpl.ID, Issues: issues}
	}
	return nil
}
