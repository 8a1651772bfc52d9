package models

import "time"

// TemplateStatus is the lifecycle state of a template.
type TemplateStatus string

const (
	StatusDraft      TemplateStatus = "draft"
	StatusActive     TemplateStatus = "active"
	StatusDeprecated TemplateStatus = "deprecated"
	StatusArchived   TemplateStatus = "archived"
)

// statusRank orders the forward-only lifecycle. draft and active are
// mutually reachable for unreviewed submissions; everything else only
// moves forward.
var statusRank = map[TemplateStatus]int{
	StatusDraft:      0,
	StatusActive:     1,
	StatusDeprecated: 2,
	StatusArchived:   3,
}

// ValidStatus reports whether s is a known lifecycle status.
func ValidStatus(s TemplateStatus) bool {
	_, ok := statusRank[s]
	return ok
}

// CanTransition reports whether a template may move from one status to
// another. Same-status writes are always allowed.
func CanTransition(from, to TemplateStatus) bool {
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	if from == to {
		return true
	}
	// draft <-> active toggle for unreviewed submissions
	if (from == StatusDraft && to == StatusActive) || (from == StatusActive && to == StatusDraft) {
		return true
	}
	return toRank > fromRank
}

// SourceKind describes where a template definition came from.
type SourceKind string

const (
	SourceFile      SourceKind = "file"
	SourceAPI       SourceKind = "api"
	SourceScript    SourceKind = "script"
	SourceManual    SourceKind = "manual"
	SourceGenerated SourceKind = "generated"
)

// TemplateSource records the provenance of a template definition.
type TemplateSource struct {
	Kind     SourceKind `json:"kind"`
	Location string     `json:"location,omitempty"`
}

// Port is a single connection point on a template. IDs are unique within
// a template; Type is "input" or "output"; Position is a rendering hint.
type Port struct {
	ID       string `json:"id"`
	Label    string `json:"label,omitempty"`
	Type     string `json:"type"`
	Position string `json:"position,omitempty"`
	DataType string `json:"dataType,omitempty"`
	Required bool   `json:"required,omitempty"`
	Multiple bool   `json:"multiple,omitempty"`
	Schema   string `json:"schema,omitempty"`
}

// PropertyValidation constrains values a property may take.
type PropertyValidation struct {
	Required  bool     `json:"required,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	MinLength *int     `json:"minLength,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
}

// PropertyDefinition describes one configurable property of a template.
type PropertyDefinition struct {
	Type         string              `json:"type"`
	Label        string              `json:"label,omitempty"`
	Description  string              `json:"description,omitempty"`
	DefaultValue any                 `json:"defaultValue,omitempty"`
	Options      []any               `json:"options,omitempty"`
	Multiple     bool                `json:"multiple,omitempty"`
	Validation   *PropertyValidation `json:"validation,omitempty"`
	VisibleWhen  string              `json:"visibleWhen,omitempty"`
}

// PropertyRule rewrites display fields when a property value matches.
type PropertyRule struct {
	When   string            `json:"when"`
	Equals any               `json:"equals"`
	Set    map[string]string `json:"set"`
}

// Template is the canonical definition of a reusable workflow unit.
type Template struct {
	ID          string         `json:"id"`
	Type        string         `json:"type,omitempty"`
	Version     string         `json:"version"`
	Status      TemplateStatus `json:"status"`
	Title       string         `json:"title"`
	Subtitle    string         `json:"subtitle,omitempty"`
	Description string         `json:"description,omitempty"`
	Category    string         `json:"category"`
	Subcategory string         `json:"subcategory,omitempty"`
	Tags        []string       `json:"tags,omitempty"`

	// Display hints carried through as opaque strings.
	Icon    string `json:"icon,omitempty"`
	Variant string `json:"variant,omitempty"`
	Shape   string `json:"shape,omitempty"`
	Size    string `json:"size,omitempty"`

	Ports         []Port                        `json:"ports,omitempty"`
	Properties    map[string]PropertyDefinition `json:"properties,omitempty"`
	PropertyRules []PropertyRule                `json:"propertyRules,omitempty"`

	Source    TemplateSource `json:"source"`
	CreatedAt time.Time      `json:"createdAt,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt,omitempty"`
	CreatedBy string         `json:"createdBy,omitempty"`
	UpdatedBy string         `json:"updatedBy,omitempty"`
}

// TemplateFilter narrows ListTemplates results.
type TemplateFilter struct {
	Status      *TemplateStatus
	Category    *string
	Subcategory *string
	Tags        []string
	Limit       int
	Offset      int
}
