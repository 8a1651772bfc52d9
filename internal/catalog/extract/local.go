package extract

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/models"
)

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// LocalEmbedder is a deterministic feature-hashing embedder: tokens are
// hashed into a fixed-dimension vector which is then L2-normalized. It has
// no external dependencies, so the catalog works out of the box; a remote
// provider satisfies the same interface.
type LocalEmbedder struct {
	dims int
}

// NewLocalEmbedder creates a feature-hashing embedder producing vectors of
// the given dimension.
func NewLocalEmbedder(dims int) *LocalEmbedder {
	return &LocalEmbedder{dims: dims}
}

func (e *LocalEmbedder) Dimensions() int { return e.dims }

// Embed hashes the tokens of text into a normalized vector. Empty or
// token-free text yields the zero vector.
func (e *LocalEmbedder) Embed(text string) []float32 {
	vec := make([]float32, e.dims)
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return vec
	}

	for _, tok := range tokens {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dims))
		// Sign bit from the hash spreads tokens across both directions,
		// which keeps unrelated texts close to orthogonal.
		if sum&(1<<63) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// GenerateEmbeddings produces the five named vectors for a template.
func (e *LocalEmbedder) GenerateEmbeddings(ctx context.Context, tpl *models.Template) (*models.Embeddings, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	capabilityText := strings.Join(append([]string{tpl.Category, tpl.Subcategory, tpl.Type}, tpl.Tags...), " ")
	useCaseText := tpl.Description
	if useCaseText == "" {
		useCaseText = tpl.Title
	}

	return &models.Embeddings{
		Title:        e.Embed(tpl.Title),
		Description:  e.Embed(tpl.Description),
		Combined:     e.Embed(BuildEmbeddingPayload(tpl)),
		Capabilities: e.Embed(capabilityText),
		UseCase:      e.Embed(useCaseText),
	}, nil
}

// LocalMetadata derives the capability summary from the template itself.
type LocalMetadata struct{}

// NewLocalMetadata creates the deterministic metadata extractor.
func NewLocalMetadata() *LocalMetadata { return &LocalMetadata{} }

// ExtractMetadata summarizes a template's capabilities and interface types
// from its category, ports and descriptive text.
func (m *LocalMetadata) ExtractMetadata(ctx context.Context, tpl *models.Template) (*models.ExtractedMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	meta := &models.ExtractedMetadata{}

	if tpl.Category != "" {
		meta.Capabilities = append(meta.Capabilities, tpl.Category)
	}
	if tpl.Subcategory != "" {
		meta.Capabilities = append(meta.Capabilities, tpl.Subcategory)
	}
	if tpl.Type != "" {
		meta.Capabilities = append(meta.Capabilities, tpl.Type)
	}

	for _, port := range tpl.Ports {
		dataType := port.DataType
		if dataType == "" {
			dataType = "any"
		}
		switch port.Type {
		case "input":
			meta.InputTypes = appendUnique(meta.InputTypes, dataType)
		case "output":
			meta.OutputTypes = appendUnique(meta.OutputTypes, dataType)
		}
	}

	if tpl.Description != "" {
		meta.UseCases = append(meta.UseCases, tpl.Description)
	}

	keywords := make(map[string]bool)
	for _, tok := range tokenize(tpl.Title + " " + tpl.Subtitle + " " + strings.Join(tpl.Tags, " ")) {
		if len(tok) > 2 {
			keywords[tok] = true
		}
	}
	for kw := range keywords {
		meta.Keywords = append(meta.Keywords, kw)
	}
	sort.Strings(meta.Keywords)

	return meta, nil
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
