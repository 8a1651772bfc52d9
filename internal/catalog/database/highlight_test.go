package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/models"
)

func TestLexicalScoreOrdering(t *testing.T) {
	titleHit := &models.Template{Title: "HTTP Client"}
	descHit := &models.Template{Title: "Requester", Description: "an http tool"}
	blobOnly := &models.Template{Title: "Fetcher"}

	assert.Equal(t, titleMatchScore, lexicalScore(titleHit, "", "http"))
	assert.Equal(t, directMatchScore, lexicalScore(descHit, "", "http"))
	assert.Equal(t, blobMatchScore, lexicalScore(blobOnly, "fetcher http request", "http"))
	assert.Equal(t, float64(0), lexicalScore(blobOnly, "nothing here", "http"))
}

func TestHighlightExcerpt(t *testing.T) {
	excerpt, ok := highlightExcerpt("HTTP Client", "http")
	require.True(t, ok)
	assert.Equal(t, "<em>HTTP</em> Client", excerpt)

	long := strings.Repeat("x", 100) + "needle" + strings.Repeat("y", 100)
	excerpt, ok = highlightExcerpt(long, "needle")
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(excerpt, "…"))
	assert.True(t, strings.HasSuffix(excerpt, "…"))
	assert.Contains(t, excerpt, "<em>needle</em>")

	_, ok = highlightExcerpt("nothing to see", "needle")
	assert.False(t, ok)
}

func TestHighlightExcerptCaseLengthChange(t *testing.T) {
	// Lowercasing U+023A grows it from two bytes to three; the match
	// offsets from the lowered string must not slice past the original.
	excerpt, ok := highlightExcerpt("Ⱥx", strings.ToLower("Ⱥx"))
	require.True(t, ok)
	assert.Equal(t, "<em>Ⱥx</em>", excerpt)

	// Lowercasing U+0130 shrinks it from two bytes to one.
	excerpt, ok = highlightExcerpt("İstanbul Feed", "istanbul")
	require.True(t, ok)
	assert.Equal(t, "<em>İstanbul</em> Feed", excerpt)

	excerpt, ok = highlightExcerpt("İ feed", "feed")
	require.True(t, ok)
	assert.Equal(t, "İ <em>feed</em>", excerpt)

	hits := buildHighlights(&models.Template{Title: "Ⱥx"}, strings.ToLower("Ⱥx"))
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0], highlightOpen)
}

func TestMatchesFilters(t *testing.T) {
	active := &models.Template{Status: models.StatusActive, Category: "tools", Tags: []string{"http", "client"}}
	deprecated := &models.Template{Status: models.StatusDeprecated, Category: "tools"}
	archived := &models.Template{Status: models.StatusArchived, Category: "tools"}

	assert.True(t, matchesFilters(active, &models.SearchQuery{}))
	assert.False(t, matchesFilters(deprecated, &models.SearchQuery{}))
	assert.True(t, matchesFilters(deprecated, &models.SearchQuery{IncludeDeprecated: true}))
	assert.False(t, matchesFilters(archived, &models.SearchQuery{IncludeDeprecated: true}))

	other := "media"
	assert.False(t, matchesFilters(active, &models.SearchQuery{Category: &other}))

	assert.True(t, matchesFilters(active, &models.SearchQuery{Tags: []string{"http"}}))
	assert.False(t, matchesFilters(active, &models.SearchQuery{Tags: []string{"http", "missing"}}))
}

func TestPaginate(t *testing.T) {
	hits := []models.SearchHit{
		{Score: 3}, {Score: 2}, {Score: 1},
	}

	assert.Len(t, paginate(hits, 0, 0), 3)
	assert.Len(t, paginate(hits, 2, 0), 2)
	assert.Len(t, paginate(hits, 2, 2), 1)
	assert.Nil(t, paginate(hits, 2, 5))
	assert.Equal(t, float64(2), paginate(hits, 1, 1)[0].Score)
}
