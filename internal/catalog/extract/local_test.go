package extract

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/models"
)

func TestLocalEmbedderDeterministic(t *testing.T) {
	e := NewLocalEmbedder(64)

	a := e.Embed("http client for rest apis")
	b := e.Embed("http client for rest apis")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestLocalEmbedderNormalized(t *testing.T) {
	e := NewLocalEmbedder(32)
	vec := e.Embed("postgres table reader with incremental sync")

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}

func TestLocalEmbedderEmptyTextIsZeroVector(t *testing.T) {
	e := NewLocalEmbedder(8)
	assert.Equal(t, make([]float32, 8), e.Embed(""))
	assert.Equal(t, make([]float32, 8), e.Embed("!!! ---"))
}

func TestGenerateEmbeddingsUniformDimension(t *testing.T) {
	e := NewLocalEmbedder(16)
	tpl := &models.Template{
		ID:          "tools_http-client",
		Title:       "HTTP Client",
		Description: "Makes HTTP requests",
		Category:    "tools",
		Tags:        []string{"http", "rest"},
	}

	emb, err := e.GenerateEmbeddings(context.Background(), tpl)
	require.NoError(t, err)
	assert.True(t, emb.Uniform(16))
}

func TestGenerateEmbeddingsHonorsCancelledContext(t *testing.T) {
	e := NewLocalEmbedder(16)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.GenerateEmbeddings(ctx, &models.Template{Title: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractMetadata(t *testing.T) {
	m := NewLocalMetadata()
	tpl := &models.Template{
		Title:       "Postgres Reader",
		Subtitle:    "Streams rows",
		Description: "Reads rows from a Postgres table",
		Category:    "data-sources",
		Subcategory: "databases",
		Type:        "source",
		Tags:        []string{"sql"},
		Ports: []models.Port{
			{ID: "in", Type: "input", DataType: "object"},
			{ID: "trigger", Type: "input"},
			{ID: "out", Type: "output", DataType: "array"},
			{ID: "out-2", Type: "output", DataType: "array"},
		},
	}

	meta, err := m.ExtractMetadata(context.Background(), tpl)
	require.NoError(t, err)

	assert.Equal(t, []string{"data-sources", "databases", "source"}, meta.Capabilities)
	assert.Equal(t, []string{"object", "any"}, meta.InputTypes)
	assert.Equal(t, []string{"array"}, meta.OutputTypes)
	assert.Equal(t, []string{"Reads rows from a Postgres table"}, meta.UseCases)
	// Keywords are sorted, deduplicated and at least three characters.
	assert.Equal(t, []string{"postgres", "reader", "rows", "sql", "streams"}, meta.Keywords)
}

func TestBuildEmbeddingPayloadStable(t *testing.T) {
	tpl := &models.Template{
		ID:       "tools_http-client",
		Title:    "HTTP Client",
		Version:  "1.2.0",
		Category: "tools",
		Tags:     []string{"http"},
		Ports:    []models.Port{{ID: "in", Type: "input"}},
	}

	first := BuildEmbeddingPayload(tpl)
	second := BuildEmbeddingPayload(tpl)
	assert.Equal(t, first, second)
	assert.Contains(t, first, "tools_http-client")
	assert.Contains(t, first, "1.2.0")

	assert.Equal(t, "", BuildEmbeddingPayload(nil))
}

func TestPayloadChecksumChangesWithContent(t *testing.T) {
	a := PayloadChecksum("one")
	b := PayloadChecksum("two")
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, PayloadChecksum("one"))
}

func TestBuildSearchTextLowercasesEverything(t *testing.T) {
	tpl := &models.Template{
		Title:    "HTTP Client",
		Category: "Tools",
		Tags:     []string{"REST"},
	}
	meta := &models.ExtractedMetadata{Keywords: []string{"Requests"}}

	text := BuildSearchText(tpl, meta)
	assert.Equal(t, "http client tools rest requests", text)

	// Similar texts embed closer than unrelated ones.
	e := NewLocalEmbedder(128)
	client := e.Embed("http client rest requests")
	similar := e.Embed("http client rest api requests")
	unrelated := e.Embed("image resize thumbnail crop")
	assert.Greater(t, dot(client, similar), dot(client, unrelated))
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	if math.IsNaN(sum) {
		return 0
	}
	return sum
}
