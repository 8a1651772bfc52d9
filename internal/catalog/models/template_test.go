package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from TemplateStatus
		to   TemplateStatus
		want bool
	}{
		{"same status", StatusActive, StatusActive, true},
		{"draft to active", StatusDraft, StatusActive, true},
		{"active back to draft", StatusActive, StatusDraft, true},
		{"active to deprecated", StatusActive, StatusDeprecated, true},
		{"deprecated to archived", StatusDeprecated, StatusArchived, true},
		{"draft straight to archived", StatusDraft, StatusArchived, true},
		{"deprecated back to active", StatusDeprecated, StatusActive, false},
		{"archived back to anything", StatusArchived, StatusActive, false},
		{"archived back to draft", StatusArchived, StatusDraft, false},
		{"unknown from", TemplateStatus("bogus"), StatusActive, false},
		{"unknown to", StatusActive, TemplateStatus("bogus"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestValidStatus(t *testing.T) {
	assert.True(t, ValidStatus(StatusDraft))
	assert.True(t, ValidStatus(StatusArchived))
	assert.False(t, ValidStatus(TemplateStatus("")))
	assert.False(t, ValidStatus(TemplateStatus("retired")))
}
