package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/models"
)

// BuildEmbeddingPayload converts a template into the canonical text payload
// used for the combined embedding and the diff fast path. The payload
// deliberately joins every field that describes the template so checksum
// comparisons stay stable across systems.
func BuildEmbeddingPayload(tpl *models.Template) string {
	if tpl == nil {
		return ""
	}

	var parts []string
	appendIf := func(values ...string) {
		for _, v := range values {
			if strings.TrimSpace(v) != "" {
				parts = append(parts, v)
			}
		}
	}

	appendIf(tpl.ID, tpl.Title, tpl.Subtitle, tpl.Description, tpl.Category, tpl.Subcategory, tpl.Version)
	appendIf(tpl.Tags...)

	if len(tpl.Ports) > 0 {
		if portJSON, err := json.Marshal(tpl.Ports); err == nil {
			parts = append(parts, string(portJSON))
		}
	}
	if len(tpl.Properties) > 0 {
		if propJSON, err := json.Marshal(tpl.Properties); err == nil {
			parts = append(parts, string(propJSON))
		}
	}

	return strings.Join(parts, "\n")
}

// BuildSearchText builds the precomputed lexical search blob stored with
// every repository entry.
func BuildSearchText(tpl *models.Template, meta *models.ExtractedMetadata) string {
	var parts []string
	appendIf := func(values ...string) {
		for _, v := range values {
			if strings.TrimSpace(v) != "" {
				parts = append(parts, strings.ToLower(v))
			}
		}
	}

	appendIf(tpl.Title, tpl.Subtitle, tpl.Description, tpl.Category, tpl.Subcategory)
	appendIf(tpl.Tags...)
	if meta != nil {
		appendIf(meta.Capabilities...)
		appendIf(meta.UseCases...)
		appendIf(meta.Keywords...)
	}
	return strings.Join(parts, " ")
}

// PayloadChecksum returns the deterministic checksum for an embedding
// payload.
func PayloadChecksum(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
