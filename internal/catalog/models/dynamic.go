package models

import "time"

// DynamicValidationStatus is the validation state of a generated template.
type DynamicValidationStatus string

const (
	DynamicPending DynamicValidationStatus = "pending"
	DynamicValid   DynamicValidationStatus = "valid"
	DynamicInvalid DynamicValidationStatus = "invalid"
)

// DynamicSourceKind identifies the external contract a dynamic template is
// generated from.
type DynamicSourceKind string

const (
	DynamicSourceAPI    DynamicSourceKind = "api"
	DynamicSourceScript DynamicSourceKind = "script"
)

// DynamicTemplate is a template whose definition is generated from an
// external contract (an API schema or a script) rather than authored
// directly. Generated code is never imported and executed; the contract is
// parsed as data.
type DynamicTemplate struct {
	ID                  string                  `json:"id"`
	Name                string                  `json:"name"`
	SourceKind          DynamicSourceKind       `json:"sourceKind"`
	SourceDefinition    string                  `json:"sourceDefinition"`
	GenerationRules     string                  `json:"generationRules,omitempty"`
	GeneratedTemplateID string                  `json:"generatedTemplateId,omitempty"`
	GeneratedAt         *time.Time              `json:"generatedAt,omitempty"`
	ValidationStatus    DynamicValidationStatus `json:"validationStatus"`
	CreatedAt           time.Time               `json:"createdAt"`
	UpdatedAt           time.Time               `json:"updatedAt"`
}

// DynamicTemplateUpdate is a partial update: only non-nil fields are
// applied.
type DynamicTemplateUpdate struct {
	GeneratedTemplateID *string
	GeneratedAt         *time.Time
	ValidationStatus    *DynamicValidationStatus
}
