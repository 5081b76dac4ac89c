package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// CookingSession is an in-progress guided cooking run.
type CookingSession struct {
	ID          int64  `json:"id"`
	RecipeID    int64  `json:"recipe_id"`
	RecipeTitle string `json:"recipe_title"`
	State       int    `json:"state"`
}

// PromptEntry is one turn of the cooking chat.
type PromptEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Instruction is one step of a recipe's cooking instructions.
type Instruction struct {
	Step         int    `json:"step"`
	Text         string `json:"text"`
	TimerSeconds int    `json:"timer_seconds,omitempty"`
}

type changeStateRequest struct {
	CookingSessionID int64 `json:"cooking_session_id" validate:"gt=0"`
	State            int   `json:"state" validate:"gte=0"`
}

type askQuestionRequest struct {
	CookingSessionID int64  `json:"cooking_session_id" validate:"gt=0"`
	Prompt           string `json:"prompt" validate:"required,max=1000"`
}

// StartCooking opens a cooking session for a saved recipe.
func (c *Client) StartCooking(ctx context.Context, recipeID int64) (int64, error) {
	var raw json.RawMessage
	path := fmt.Sprintf("/cooking/%d/start", recipeID)
	if err := c.call(ctx, http.MethodPost, "/cooking/{recipeId}/start", path, nil, &raw); err != nil {
		return 0, err
	}
	id, err := decodeID(raw, "cooking_session_id", "session_id")
	if err != nil {
		return 0, fmt.Errorf("POST /cooking/{recipeId}/start: %w", err)
	}
	return id, nil
}

// CookingSession fetches a cooking session.
func (c *Client) CookingSession(ctx context.Context, sessionID int64) (*CookingSession, error) {
	var s CookingSession
	path := fmt.Sprintf("/cooking/%d/get", sessionID)
	if err := c.call(ctx, http.MethodGet, "/cooking/{id}/get", path, nil, &s); err != nil {
		return nil, err
	}
	if s.ID == 0 {
		s.ID = sessionID
	}
	return &s, nil
}

// ChangeCookingState moves the session to another instruction step.
func (c *Client) ChangeCookingState(ctx context.Context, sessionID int64, state int) error {
	req := &changeStateRequest{CookingSessionID: sessionID, State: state}
	return c.call(ctx, http.MethodPut, "/cooking/change_state", "/cooking/change_state", req, nil)
}

// PromptHistory returns the chat history of a cooking session.
func (c *Client) PromptHistory(ctx context.Context, sessionID int64) ([]PromptEntry, error) {
	var history []PromptEntry
	path := fmt.Sprintf("/cooking/%d/get_prompt_history", sessionID)
	if err := c.call(ctx, http.MethodGet, "/cooking/{id}/get_prompt_history", path, nil, &history); err != nil {
		return nil, err
	}
	return history, nil
}

// AskQuestion sends a chat question and returns the assistant's answer.
func (c *Client) AskQuestion(ctx context.Context, sessionID int64, prompt string) (string, error) {
	var raw json.RawMessage
	req := &askQuestionRequest{CookingSessionID: sessionID, Prompt: prompt}
	if err := c.call(ctx, http.MethodPost, "/cooking/ask_question", "/cooking/ask_question", req, &raw); err != nil {
		return "", err
	}

	var answer string
	if err := json.Unmarshal(raw, &answer); err == nil {
		return answer, nil
	}
	var resp struct {
		Answer   string `json:"answer"`
		Response string `json:"response"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("POST /cooking/ask_question: failed to decode answer: %w", err)
	}
	if resp.Answer != "" {
		return resp.Answer, nil
	}
	return resp.Response, nil
}

// FinishCooking closes a cooking session.
func (c *Client) FinishCooking(ctx context.Context, sessionID int64) error {
	path := fmt.Sprintf("/cooking/%d/finish", sessionID)
	return c.call(ctx, http.MethodDelete, "/cooking/{id}/finish", path, nil, nil)
}

// Instructions returns the cooking instructions of a recipe.
func (c *Client) Instructions(ctx context.Context, recipeID int64) ([]Instruction, error) {
	var steps []Instruction
	path := fmt.Sprintf("/instruction/%d", recipeID)
	if err := c.call(ctx, http.MethodGet, "/instruction/{recipeId}", path, nil, &steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// DeleteInstructions drops the generated instructions so the backend
// regenerates them on the next fetch.
func (c *Client) DeleteInstructions(ctx context.Context, recipeID int64) error {
	path := fmt.Sprintf("/instruction/%d", recipeID)
	return c.call(ctx, http.MethodDelete, "/instruction/{recipeId}", path, nil, nil)
}
