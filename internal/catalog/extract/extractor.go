// Package extract defines the external collaborator interfaces that turn a
// canonical template into searchable metadata and embeddings, plus a local
// deterministic provider used when no remote service is configured.
package extract

import (
	"context"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/models"
)

// EmbeddingExtractor produces the fixed set of vectors for a template.
// Every returned vector must have the deployment's configured dimension.
type EmbeddingExtractor interface {
	GenerateEmbeddings(ctx context.Context, tpl *models.Template) (*models.Embeddings, error)
	Dimensions() int
}

// MetadataExtractor produces the capability/keyword summary for a template.
type MetadataExtractor interface {
	ExtractMetadata(ctx context.Context, tpl *models.Template) (*models.ExtractedMetadata, error)
}
