package catalog

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/ariefcatur/go-storefront/internal/paging"
	"github.com/ariefcatur/go-storefront/internal/postgres/pgtest"
)

func TestRepoCatalogFlow(t *testing.T) {
	db := pgtest.Open(t)
	repo := &Repo{DB: db}
	ctx := context.Background()

	clothing, err := repo.CreateCategory(ctx, CategoryInput{Name: "Clothing"})
	require.NoError(t, err)
	shoes, err := repo.CreateCategory(ctx, CategoryInput{Name: "Shoes", ParentID: &clothing.ID})
	require.NoError(t, err)

	_, err = repo.CreateCategory(ctx, CategoryInput{Name: "Shoes"})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = repo.UpdateCategory(ctx, clothing.ID, CategoryInput{Name: "Clothing", ParentID: &shoes.ID})
	assert.True(t, apperr.IsValidation(err))

	runner, err := repo.CreateProduct(ctx, ProductInput{
		Name: "Trail Runner", CategoryID: shoes.ID, Price: dec("100"), DiscountPrice: decPtr("80"),
		Stock: 5, IsActive: true, Attributes: json.RawMessage(`{"size": 42, "color": "red"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "trail-runner", runner.Slug)
	assert.Equal(t, "size", runner.Attributes[0].Key)
	assert.True(t, dec("80").Equal(runner.EffectivePrice()))

	_, err = repo.CreateProduct(ctx, ProductInput{Name: "Trail Runner", CategoryID: shoes.ID, Price: dec("1")})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = repo.CreateProduct(ctx, ProductInput{Name: "Hidden", CategoryID: clothing.ID, Price: dec("5")})
	require.NoError(t, err)

	page, err := repo.ListProducts(ctx, ProductFilter{ActiveOnly: true, Page: paging.Params{Page: 1}})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	page, err = repo.ListProducts(ctx, ProductFilter{Query: "red", Page: paging.Params{Page: 1}})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, runner.ID, page.Items[0].ID)

	page, err = repo.ListProducts(ctx, ProductFilter{CategoryID: clothing.ID, IncludeDescendants: true, Page: paging.Params{Page: 1}})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	got, err := repo.GetProductBySlug(ctx, "trail-runner")
	require.NoError(t, err)
	assert.Equal(t, runner.ID, got.ID)

	img, err := repo.AddImage(ctx, runner.ID, "/media/a.jpg")
	require.NoError(t, err)
	_, err = repo.AddImage(ctx, 9999, "/media/b.jpg")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, repo.DeleteCategory(ctx, clothing.ID))
	_, err = repo.GetProduct(ctx, runner.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = repo.DeleteImage(ctx, runner.ID, img.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = repo.GetCategory(ctx, shoes.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
