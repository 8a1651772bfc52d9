package ingest

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// fileCategories maps well-known definition file stems to catalog
// categories. Anything unrecognized lands in uncategorized.
var fileCategories = map[string]string{
	"data-sources":   "data-sources",
	"ai-models":      "ai-models",
	"logic-control":  "logic-control",
	"communication":  "communication",
	"scripting":      "scripting",
	"tools":          "tools",
	"storage-memory": "storage-memory",
	"media":          "media",
	"server-nodes":   "server-nodes",
	"inputs":         "inputs",
	"outputs":        "outputs",
}

// CategoryForFile infers a category from the definition file name.
func CategoryForFile(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if category, ok := fileCategories[strings.ToLower(stem)]; ok {
		return category
	}
	return "uncategorized"
}

// Discover walks the roots and returns every file matching one of the
// include globs and none of the exclude globs. Patterns match against the
// base name. The result is sorted for a stable ingestion order.
func Discover(roots, include, exclude []string) ([]string, error) {
	var files []string

	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			name := d.Name()
			if !matchesAny(name, include) || matchesAny(name, exclude) {
				return nil
			}
			files = append(files, path)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", root, err)
		}
	}

	sort.Strings(files)
	return files, nil
}

func matchesAny(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, err := filepath.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}
