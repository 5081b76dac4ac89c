package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"piatto/internal/recipe"
)

// GenerateRequest starts or continues a preparing session.
type GenerateRequest struct {
	Prompt             string   `json:"prompt" validate:"required,max=2000"`
	WrittenIngredients []string `json:"written_ingredients" validate:"dive,max=200"`
	ImageKey           *string  `json:"image_key"`
	PreparingSessionID *int64   `json:"preparing_session_id"`
}

// ImageAnalysis is the ingredient analysis of an uploaded fridge photo.
type ImageAnalysis struct {
	ImageKey            string   `json:"image_key"`
	AnalyzedIngredients []string `json:"analyzed_ingredients"`
}

// Generate asks the backend for recipe options and returns the preparing
// session id they belong to.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (int64, error) {
	if req.WrittenIngredients == nil {
		req.WrittenIngredients = []string{}
	}
	var raw json.RawMessage
	if err := c.call(ctx, http.MethodPost, "/preparing/generate", "/preparing/generate", &req, &raw); err != nil {
		return 0, err
	}
	id, err := decodeID(raw, "preparing_session_id", "session_id")
	if err != nil {
		return 0, fmt.Errorf("POST /preparing/generate: %w", err)
	}
	return id, nil
}

// Options returns the recipe options of a preparing session.
func (c *Client) Options(ctx context.Context, sessionID int64) ([]recipe.Option, error) {
	var opts []recipe.Option
	path := fmt.Sprintf("/preparing/%d/get_options", sessionID)
	if err := c.call(ctx, http.MethodGet, "/preparing/{id}/get_options", path, nil, &opts); err != nil {
		return nil, err
	}
	return opts, nil
}

// FinishPreparing discards a preparing session on the backend.
func (c *Client) FinishPreparing(ctx context.Context, sessionID int64) error {
	path := fmt.Sprintf("/preparing/%d/finish", sessionID)
	return c.call(ctx, http.MethodDelete, "/preparing/{id}/finish", path, nil, nil)
}

// ImageAnalysis returns the photo analysis of a session, or nil when the
// session has none.
func (c *Client) ImageAnalysis(ctx context.Context, sessionID int64) (*ImageAnalysis, error) {
	var analysis ImageAnalysis
	path := fmt.Sprintf("/preparing/%d/image-analysis", sessionID)
	if err := c.call(ctx, http.MethodGet, "/preparing/{id}/image-analysis", path, nil, &analysis); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &analysis, nil
}

// RemoveCurrentRecipe takes a recipe out of the session's current options and
// returns the remaining ids.
func (c *Client) RemoveCurrentRecipe(ctx context.Context, sessionID, recipeID int64) ([]int64, error) {
	return c.currentRecipes(ctx, http.MethodDelete, sessionID, recipeID)
}

// AddCurrentRecipe puts a recipe back into the session's current options.
func (c *Client) AddCurrentRecipe(ctx context.Context, sessionID, recipeID int64) ([]int64, error) {
	return c.currentRecipes(ctx, http.MethodPost, sessionID, recipeID)
}

func (c *Client) currentRecipes(ctx context.Context, method string, sessionID, recipeID int64) ([]int64, error) {
	var raw json.RawMessage
	path := fmt.Sprintf("/preparing/%d/current-recipes/%d", sessionID, recipeID)
	if err := c.call(ctx, method, "/preparing/{id}/current-recipes/{recipeId}", path, nil, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return decodeIDList(raw, "current_recipe_ids", "recipe_ids")
}

// RecipeImage returns the image url of a recipe, nil while generation is
// still running.
func (c *Client) RecipeImage(ctx context.Context, recipeID int64) (*string, error) {
	var resp struct {
		ImageURL *string `json:"image_url"`
	}
	path := fmt.Sprintf("/recipe/%d/image", recipeID)
	if err := c.call(ctx, http.MethodGet, "/recipe/{recipeId}/image", path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.ImageURL, nil
}

// SaveRecipe adds a generated recipe to the user's library.
func (c *Client) SaveRecipe(ctx context.Context, recipeID int64) error {
	path := fmt.Sprintf("/recipe/%d/save", recipeID)
	return c.call(ctx, http.MethodPost, "/recipe/{recipeId}/save", path, nil, nil)
}

// UnsaveRecipe removes a recipe from the user's library.
func (c *Client) UnsaveRecipe(ctx context.Context, recipeID int64) error {
	path := fmt.Sprintf("/recipe/%d/save", recipeID)
	return c.call(ctx, http.MethodDelete, "/recipe/{recipeId}/save", path, nil, nil)
}
