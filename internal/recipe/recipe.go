package recipe

import "fmt"

// Option is a candidate recipe returned by generation, not yet saved to the
// user's library.
type Option struct {
	ID               int64   `json:"id"`
	Title            string  `json:"title"`
	Description      string  `json:"description"`
	ImageURL         *string `json:"image_url"`
	Difficulty       string  `json:"difficulty"`
	TotalTimeMinutes int     `json:"total_time_minutes"`
	FoodCategory     string  `json:"food_category"`
}

// IsPlaceholder reports whether the option stands in for a recipe the backend
// has not materialized yet.
func (o Option) IsPlaceholder() bool {
	return o.ID < 0
}

// HasImage reports whether the asynchronous image generation has finished.
func (o Option) HasImage() bool {
	return o.ImageURL != nil && *o.ImageURL != ""
}

// PlaceholderCount is the number of options a generation produces.
const PlaceholderCount = 3

// Placeholders returns options with sentinel IDs -1..-n, shown while the
// generate call is in flight.
func Placeholders(n int) []Option {
	opts := make([]Option, n)
	for i := range opts {
		opts[i] = Option{ID: int64(-(i + 1))}
	}
	return opts
}

// ImageStatus tracks the image generation of one option on the client.
type ImageStatus string

const (
	ImageLoading ImageStatus = "loading"
	ImageLoaded  ImageStatus = "loaded"
	ImageError   ImageStatus = "error"
)

// Terminal reports whether polling is finished for this status.
func (s ImageStatus) Terminal() bool {
	return s == ImageLoaded || s == ImageError
}

// Collection is a user-defined named grouping of saved recipes.
type Collection struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	RecipeIDs []int64 `json:"recipe_ids"`
}

// Status is the per-recipe decision in the library view.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSaved     Status = "saved"
	StatusDiscarded Status = "discarded"
)

// Label returns a short human-readable form of the option.
func (o Option) Label() string {
	if o.IsPlaceholder() {
		return fmt.Sprintf("Rezept %d wird erstellt…", -o.ID)
	}
	if o.TotalTimeMinutes > 0 {
		return fmt.Sprintf("%s (%d min)", o.Title, o.TotalTimeMinutes)
	}
	return o.Title
}
