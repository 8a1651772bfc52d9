package normalize

import (
	"strings"
	"unicode"
)

// SynthesizeID builds a deterministic template id from category and title,
// so re-ingestion of an unchanged file reproduces the same id.
func SynthesizeID(category, title string) string {
	cat := Slugify(category)
	if cat == "" {
		cat = "uncategorized"
	}
	slug := Slugify(title)
	if slug == "" {
		return cat
	}
	return cat + "_" + slug
}

// Slugify lowercases s and collapses every run of non-alphanumeric
// characters into a single hyphen.
func Slugify(s string) string {
	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastHyphen = false
			continue
		}
		if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
