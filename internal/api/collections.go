package api

import (
	"context"
	"fmt"
	"net/http"

	"piatto/internal/recipe"
)

type createCollectionRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type updateCollectionRequest struct {
	RecipeIDs []int64 `json:"recipe_ids" validate:"required"`
}

// Collections lists the user's collections.
func (c *Client) Collections(ctx context.Context) ([]recipe.Collection, error) {
	var cols []recipe.Collection
	if err := c.call(ctx, http.MethodGet, "/collection/", "/collection/", nil, &cols); err != nil {
		return nil, err
	}
	return cols, nil
}

// CreateCollection creates an empty collection.
func (c *Client) CreateCollection(ctx context.Context, name string) (*recipe.Collection, error) {
	var col recipe.Collection
	if err := c.call(ctx, http.MethodPost, "/collection/", "/collection/", &createCollectionRequest{Name: name}, &col); err != nil {
		return nil, err
	}
	return &col, nil
}

// UpdateCollectionRecipes replaces the full recipe membership of a collection.
func (c *Client) UpdateCollectionRecipes(ctx context.Context, collectionID int64, recipeIDs []int64) error {
	if recipeIDs == nil {
		recipeIDs = []int64{}
	}
	path := fmt.Sprintf("/collection/%d/recipes", collectionID)
	return c.call(ctx, http.MethodPut, "/collection/{id}/recipes", path, &updateCollectionRequest{RecipeIDs: recipeIDs}, nil)
}
