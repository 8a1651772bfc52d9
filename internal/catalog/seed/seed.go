// Package seed loads the built-in category taxonomy into the store.
// Seeding is idempotent: categories upsert by unique name and an existing
// subcategory is left untouched.
package seed

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/database"
	"github.com/offbit-ai/zeal-catalog/internal/catalog/models"
)

//go:embed categories.json
var categoriesJSON []byte

// Categories decodes the embedded taxonomy.
func Categories() ([]models.Category, error) {
	var categories []models.Category
	if err := json.Unmarshal(categoriesJSON, &categories); err != nil {
		return nil, fmt.Errorf("failed to decode embedded taxonomy: %w", err)
	}
	return categories, nil
}

// Seed writes the embedded taxonomy into the store. Safe to run on every
// startup; a subcategory that already exists is a no-op.
func Seed(ctx context.Context, db database.Database, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	categories, err := Categories()
	if err != nil {
		return err
	}

	for _, cat := range categories {
		if cat.ID == "" {
			cat.ID = uuid.New().String()
		}
		cat.IsActive = true

		stored, err := db.UpsertCategory(ctx, &cat)
		if err != nil {
			return fmt.Errorf("failed to seed category %q: %w", cat.Name, err)
		}

		for _, sub := range cat.Subcategories {
			if sub.ID == "" {
				sub.ID = uuid.New().String()
			}
			sub.IsActive = true

			err := db.CreateSubcategory(ctx, stored.ID, &sub)
			if err != nil {
				if errors.Is(err, database.ErrAlreadyExists) {
					continue
				}
				return fmt.Errorf("failed to seed subcategory %q: %w", sub.Name, err)
			}
		}
	}

	logger.Info("category taxonomy seeded", zap.Int("categories", len(categories)))
	return nil
}
