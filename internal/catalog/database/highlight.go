package database

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/models"
)

const (
	highlightOpen    = "<em>"
	highlightClose   = "</em>"
	excerptRadius    = 40
	titleMatchScore  = 1.0
	directMatchScore = 0.6
	blobMatchScore   = 0.3
)

// lexicalScore ranks a template against a lowercase query term. Title
// matches rank above subtitle/description matches, which rank above matches
// found only in the precomputed search blob.
func lexicalScore(tpl *models.Template, searchText, query string) float64 {
	if strings.Contains(strings.ToLower(tpl.Title), query) {
		return titleMatchScore
	}
	if strings.Contains(strings.ToLower(tpl.Subtitle), query) ||
		strings.Contains(strings.ToLower(tpl.Description), query) {
		return directMatchScore
	}
	if strings.Contains(searchText, query) {
		return blobMatchScore
	}
	return 0
}

// buildHighlights returns excerpts of title and description with each
// occurrence of the query substring wrapped in markers.
func buildHighlights(tpl *models.Template, query string) []string {
	var highlights []string
	for _, text := range []string{tpl.Title, tpl.Description} {
		if excerpt, ok := highlightExcerpt(text, query); ok {
			highlights = append(highlights, excerpt)
		}
	}
	return highlights
}

// highlightExcerpt wraps the first case-insensitive occurrence of query in
// text and trims the surrounding context to a fixed radius.
func highlightExcerpt(text, query string) (string, bool) {
	if text == "" || query == "" {
		return "", false
	}
	idx := strings.Index(strings.ToLower(text), query)
	if idx < 0 {
		return "", false
	}
	matchStart, matchEnd := matchBounds(text, idx, idx+len(query))

	start := matchStart - excerptRadius
	if start < 0 {
		start = 0
	}
	end := matchEnd + excerptRadius
	if end > len(text) {
		end = len(text)
	}

	var b strings.Builder
	if start > 0 {
		b.WriteString("…")
	}
	b.WriteString(text[start:matchStart])
	b.WriteString(highlightOpen)
	b.WriteString(text[matchStart:matchEnd])
	b.WriteString(highlightClose)
	b.WriteString(text[matchEnd:end])
	if end < len(text) {
		b.WriteString("…")
	}
	return b.String(), true
}

// matchBounds maps byte offsets of a match found in the lowered form of
// text back onto text itself. Lowercasing can change a rune's byte length
// (U+023A grows, U+0130 shrinks), so the offsets are recovered by walking
// both strings rune by rune instead of reused directly.
func matchBounds(text string, lowStart, lowEnd int) (int, int) {
	start, end := -1, len(text)
	lowOff := 0
	for i, r := range text {
		if start < 0 && lowOff >= lowStart {
			start = i
		}
		if lowOff >= lowEnd {
			end = i
			break
		}
		lowOff += utf8.RuneLen(unicode.ToLower(r))
	}
	if start < 0 {
		start = len(text)
	}
	return start, end
}

// matchesFilters applies the shared filter contract of both search paths.
func matchesFilters(tpl *models.Template, query *models.SearchQuery) bool {
	switch tpl.Status {
	case models.StatusActive:
	case models.StatusDeprecated:
		if !query.IncludeDeprecated {
			return false
		}
	default:
		return false
	}
	if query.Category != nil && tpl.Category != *query.Category {
		return false
	}
	for _, want := range query.Tags {
		found := false
		for _, tag := range tpl.Tags {
			if tag == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// paginate applies limit/offset to an already ranked result set.
func paginate(hits []models.SearchHit, limit, offset int) []models.SearchHit {
	if offset >= len(hits) {
		return nil
	}
	hits = hits[offset:]
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}
