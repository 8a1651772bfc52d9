package models

import "time"

// Embedding names stored for every repository entry. All vectors share the
// deployment's configured dimensionality.
const (
	EmbeddingTitle        = "title"
	EmbeddingDescription  = "description"
	EmbeddingCombined     = "combined"
	EmbeddingCapabilities = "capabilities"
	EmbeddingUseCase      = "useCase"
)

// Embeddings is the fixed set of vectors derived from a template.
type Embeddings struct {
	Title        []float32 `json:"title"`
	Description  []float32 `json:"description"`
	Combined     []float32 `json:"combined"`
	Capabilities []float32 `json:"capabilities"`
	UseCase      []float32 `json:"useCase"`
}

// Dimensions returns the vector length, or 0 when no vector is present.
func (e *Embeddings) Dimensions() int {
	if e == nil {
		return 0
	}
	for _, v := range [][]float32{e.Title, e.Description, e.Combined, e.Capabilities, e.UseCase} {
		if len(v) > 0 {
			return len(v)
		}
	}
	return 0
}

// Uniform reports whether every non-empty vector has dimension dims.
func (e *Embeddings) Uniform(dims int) bool {
	if e == nil {
		return true
	}
	for _, v := range [][]float32{e.Title, e.Description, e.Combined, e.Capabilities, e.UseCase} {
		if len(v) != 0 && len(v) != dims {
			return false
		}
	}
	return true
}

// ExtractedMetadata is the capability summary produced by the metadata
// extractor for one template.
type ExtractedMetadata struct {
	Capabilities []string `json:"capabilities,omitempty"`
	InputTypes   []string `json:"inputTypes,omitempty"`
	OutputTypes  []string `json:"outputTypes,omitempty"`
	UseCases     []string `json:"useCases,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
}

// RelationshipType labels a directed edge between two templates.
type RelationshipType string

const (
	RelCommonlyUsedWith RelationshipType = "commonly-used-with"
	RelAlternatives     RelationshipType = "alternatives"
	RelUpgradesTo       RelationshipType = "upgrades-to"
	RelRequires         RelationshipType = "requires"
)

// Relationship is a directed, typed edge to another template. Edges are
// deduplicated per (source, target, type).
type Relationship struct {
	TargetID string           `json:"targetId"`
	Type     RelationshipType `json:"type"`
}

// EntryStats tracks usage of a repository entry. Mutated incrementally by
// usage recording, never rewritten wholesale except by an explicit reset.
type EntryStats struct {
	UsageCount     int64      `json:"usageCount"`
	SuccessCount   int64      `json:"successCount"`
	AvgExecutionMS float64    `json:"avgExecutionMs"`
	AvgRating      float64    `json:"avgRating"`
	ErrorRate      float64    `json:"errorRate"`
	LastUsedAt     *time.Time `json:"lastUsedAt,omitempty"`
}

// RepositoryEntry is the indexed record derived from a Template, one-to-one
// with the template id.
type RepositoryEntry struct {
	TemplateID    string            `json:"templateId"`
	Template      Template          `json:"template"`
	Embeddings    Embeddings        `json:"embeddings"`
	Metadata      ExtractedMetadata `json:"metadata"`
	Relationships []Relationship    `json:"relationships,omitempty"`
	Stats         EntryStats        `json:"stats"`
	SearchText    string            `json:"searchText"`
	Checksum      string            `json:"checksum,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// SearchQuery is the shared filter contract for both the lexical and the
// vector search path.
type SearchQuery struct {
	Query             string
	Category          *string
	Tags              []string
	IncludeDeprecated bool
	Limit             int
	Offset            int
}

// SearchHit is a single ranked search result. Highlights are excerpts of
// title/description with the matched substring wrapped in markers; Score is
// similarity in [0, 1] for the vector path and a relevance rank for the
// lexical path.
type SearchHit struct {
	Template   Template `json:"template"`
	Score      float64  `json:"score"`
	Highlights []string `json:"highlights,omitempty"`
}
