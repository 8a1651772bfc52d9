package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/database"
	"github.com/offbit-ai/zeal-catalog/internal/catalog/models"
)

func TestCategoriesDecode(t *testing.T) {
	categories, err := Categories()
	require.NoError(t, err)
	require.NotEmpty(t, categories)

	names := make(map[string]bool, len(categories))
	for _, cat := range categories {
		assert.NotEmpty(t, cat.Name)
		assert.NotEmpty(t, cat.DisplayName, cat.Name)
		assert.False(t, names[cat.Name], "duplicate category %q", cat.Name)
		names[cat.Name] = true
	}
	assert.True(t, names["data-sources"])
	assert.True(t, names["ai-models"])
	assert.True(t, names["tools"])
}

func TestSeedWritesEveryCategory(t *testing.T) {
	var upserted []string
	var subcategories int
	db := &database.FakeDatabase{
		UpsertCategoryFn: func(ctx context.Context, cat *models.Category) (*models.Category, error) {
			upserted = append(upserted, cat.Name)
			assert.NotEmpty(t, cat.ID)
			assert.True(t, cat.IsActive)
			return cat, nil
		},
		CreateSubcategoryFn: func(ctx context.Context, categoryID string, sub *models.Subcategory) error {
			subcategories++
			assert.NotEmpty(t, categoryID)
			assert.NotEmpty(t, sub.ID)
			return nil
		},
	}

	require.NoError(t, Seed(context.Background(), db, nil))

	categories, err := Categories()
	require.NoError(t, err)
	assert.Len(t, upserted, len(categories))
	assert.Greater(t, subcategories, 0)
}

func TestSeedToleratesExistingSubcategories(t *testing.T) {
	db := &database.FakeDatabase{
		UpsertCategoryFn: func(ctx context.Context, cat *models.Category) (*models.Category, error) {
			return cat, nil
		},
		CreateSubcategoryFn: func(ctx context.Context, categoryID string, sub *models.Subcategory) error {
			return database.ErrAlreadyExists
		},
	}

	assert.NoError(t, Seed(context.Background(), db, nil))
}

func TestSeedPropagatesCategoryFailure(t *testing.T) {
	db := &database.FakeDatabase{
		UpsertCategoryFn: func(ctx context.Context, cat *models.Category) (*models.Category, error) {
			return nil, assert.AnError
		},
	}

	assert.Error(t, Seed(context.Background(), db, nil))
}
