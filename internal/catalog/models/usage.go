package models

import "time"

// UsageEvent is one immutable record of a template being used.
type UsageEvent struct {
	ID          string         `json:"id"`
	TemplateID  string         `json:"templateId"`
	Action      string         `json:"action"`
	Success     bool           `json:"success"`
	ExecutionMS int64          `json:"executionMs,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	OccurredAt  time.Time      `json:"occurredAt"`
}

// UsageStats aggregates usage events for one template. A template with no
// recorded usage yields a zero-valued UsageStats, not an error.
type UsageStats struct {
	TemplateID     string     `json:"templateId"`
	TotalCount     int64      `json:"totalCount"`
	SuccessCount   int64      `json:"successCount"`
	AvgExecutionMS float64    `json:"avgExecutionMs"`
	LastUsedAt     *time.Time `json:"lastUsedAt,omitempty"`
}
