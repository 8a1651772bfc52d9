package models

import "time"

// ChangeType classifies a single field-level difference between two
// versions of a template.
type ChangeType string

const (
	ChangeAdded      ChangeType = "added"
	ChangeModified   ChangeType = "modified"
	ChangeRemoved    ChangeType = "removed"
	ChangeDeprecated ChangeType = "deprecated"
)

// TemplateChange is one typed change inside a version record.
type TemplateChange struct {
	Type  ChangeType `json:"type"`
	Field string     `json:"field"`
	From  string     `json:"from,omitempty"`
	To    string     `json:"to,omitempty"`
}

// VersionRecord is an immutable history entry per (template id, version).
// Never mutated after creation.
type VersionRecord struct {
	TemplateID string           `json:"templateId"`
	Version    string           `json:"version"`
	Changes    []TemplateChange `json:"changes,omitempty"`
	Breaking   bool             `json:"breaking"`
	Deprecated bool             `json:"deprecated"`
	CreatedAt  time.Time        `json:"createdAt"`
}
