// Package collection assigns chosen recipes to user-defined collections, one
// recipe per step.
package collection

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"piatto/internal/messages"
	"piatto/internal/recipe"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNoCollection is returned when a recipe has no collection selected.
var ErrNoCollection = errors.New("collection: no collection selected")

func init() {
	messages.Register(ErrNoCollection, messages.NoCollection)
}

// MissingSelectionError names the recipe that still needs a collection.
type MissingSelectionError struct {
	RecipeID int64
	Title    string
}

func (e *MissingSelectionError) Error() string {
	return fmt.Sprintf("recipe %d (%s): %v", e.RecipeID, e.Title, ErrNoCollection)
}

func (e *MissingSelectionError) Unwrap() error { return ErrNoCollection }

func (e *MissingSelectionError) UserMessage() string {
	return fmt.Sprintf(messages.NoCollectionFor, e.Title)
}

// Updater writes the full recipe list of one collection.
type Updater interface {
	UpdateCollectionRecipes(ctx context.Context, collectionID int64, recipeIDs []int64) error
}

// Flow is the per-recipe assignment wizard. A recipe reached for the first
// time inherits the selection of the recipe before it; a recipe visited
// before keeps its own selection.
type Flow struct {
	recipes     []recipe.Option
	collections []recipe.Collection
	index       int
	selection   map[int64]map[int64]struct{}
	visited     map[int64]bool
}

// NewFlow starts a flow over recipes with the user's existing collections.
func NewFlow(recipes []recipe.Option, collections []recipe.Collection) *Flow {
	f := &Flow{
		recipes:     append([]recipe.Option(nil), recipes...),
		collections: append([]recipe.Collection(nil), collections...),
		selection:   make(map[int64]map[int64]struct{}, len(recipes)),
		visited:     make(map[int64]bool, len(recipes)),
	}
	for _, r := range f.recipes {
		f.selection[r.ID] = map[int64]struct{}{}
	}
	if len(f.recipes) > 0 {
		f.visited[f.recipes[0].ID] = true
	}
	return f
}

// Len is the number of recipes in the flow.
func (f *Flow) Len() int { return len(f.recipes) }

// Index is the position of the current recipe.
func (f *Flow) Index() int { return f.index }

// IsLast reports whether the current recipe is the last one.
func (f *Flow) IsLast() bool { return f.index >= len(f.recipes)-1 }

// Current returns the recipe of the current step.
func (f *Flow) Current() recipe.Option {
	if len(f.recipes) == 0 {
		return recipe.Option{}
	}
	return f.recipes[f.index]
}

// Collections returns the collections the user can choose from.
func (f *Flow) Collections() []recipe.Collection {
	return append([]recipe.Collection(nil), f.collections...)
}

// AddCollection makes a newly created collection available.
func (f *Flow) AddCollection(c recipe.Collection) {
	f.collections = append(f.collections, c)
}

// Toggle flips collectionID in the current recipe's selection.
func (f *Flow) Toggle(collectionID int64) {
	if len(f.recipes) == 0 {
		return
	}
	sel := f.selection[f.Current().ID]
	if _, ok := sel[collectionID]; ok {
		delete(sel, collectionID)
	} else {
		sel[collectionID] = struct{}{}
	}
}

// Select replaces the current recipe's selection.
func (f *Flow) Select(collectionIDs ...int64) {
	if len(f.recipes) == 0 {
		return
	}
	sel := make(map[int64]struct{}, len(collectionIDs))
	for _, id := range collectionIDs {
		sel[id] = struct{}{}
	}
	f.selection[f.Current().ID] = sel
}

// Selected returns the sorted selection of a recipe.
func (f *Flow) Selected(recipeID int64) []int64 {
	return sortedKeys(f.selection[recipeID])
}

// IsSelected reports whether collectionID is chosen for the current recipe.
func (f *Flow) IsSelected(collectionID int64) bool {
	_, ok := f.selection[f.Current().ID][collectionID]
	return ok
}

// Next advances to the following recipe. The current recipe needs at least
// one collection.
func (f *Flow) Next() error {
	if len(f.recipes) == 0 {
		return nil
	}
	cur := f.Current()
	if len(f.selection[cur.ID]) == 0 {
		return ErrNoCollection
	}
	if f.IsLast() {
		return nil
	}

	f.index++
	next := f.Current()
	if !f.visited[next.ID] {
		inherited := make(map[int64]struct{}, len(f.selection[cur.ID]))
		for id := range f.selection[cur.ID] {
			inherited[id] = struct{}{}
		}
		f.selection[next.ID] = inherited
		f.visited[next.ID] = true
	}
	return nil
}

// Prev goes back one recipe. Selections are never propagated backwards.
func (f *Flow) Prev() bool {
	if f.index == 0 {
		return false
	}
	f.index--
	return true
}

// Validate checks that every recipe has at least one collection.
func (f *Flow) Validate() error {
	for _, r := range f.recipes {
		if len(f.selection[r.ID]) == 0 {
			return &MissingSelectionError{RecipeID: r.ID, Title: r.Title}
		}
	}
	return nil
}

// Updates returns the new recipe list of every affected collection: the
// recipes it already held plus the newly assigned ones.
func (f *Flow) Updates() map[int64][]int64 {
	existing := make(map[int64][]int64, len(f.collections))
	for _, c := range f.collections {
		existing[c.ID] = c.RecipeIDs
	}

	merged := map[int64]map[int64]struct{}{}
	for recipeID, sel := range f.selection {
		for colID := range sel {
			set, ok := merged[colID]
			if !ok {
				set = map[int64]struct{}{}
				for _, id := range existing[colID] {
					set[id] = struct{}{}
				}
				merged[colID] = set
			}
			set[recipeID] = struct{}{}
		}
	}

	out := make(map[int64][]int64, len(merged))
	for colID, set := range merged {
		out[colID] = sortedKeys(set)
	}
	return out
}

// Save validates the flow and issues one update per affected collection.
func (f *Flow) Save(ctx context.Context, u Updater) error {
	if err := f.Validate(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for colID, recipeIDs := range f.Updates() {
		g.Go(func() error {
			return u.UpdateCollectionRecipes(ctx, colID, recipeIDs)
		})
	}
	return g.Wait()
}

func sortedKeys(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Backend lists and creates collections.
type Backend interface {
	Collections(ctx context.Context) ([]recipe.Collection, error)
	CreateCollection(ctx context.Context, name string) (*recipe.Collection, error)
}

type userError struct {
	msg string
	err error
}

func (e *userError) Error() string       { return e.err.Error() }
func (e *userError) Unwrap() error       { return e.err }
func (e *userError) UserMessage() string { return e.msg }

// Service loads and creates collections with localized failures.
type Service struct {
	backend Backend
	logger  *zap.Logger
}

// NewService creates a Service.
func NewService(backend Backend, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{backend: backend, logger: logger}
}

// Load returns the user's collections.
func (s *Service) Load(ctx context.Context) ([]recipe.Collection, error) {
	cols, err := s.backend.Collections(ctx)
	if err != nil {
		s.logger.Error("failed to load collections", zap.Error(err))
		return nil, &userError{msg: messages.CollectionsLoadFailed, err: err}
	}
	return cols, nil
}

// Create makes a new collection named name.
func (s *Service) Create(ctx context.Context, name string) (*recipe.Collection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &userError{msg: messages.CollectionNameRequired, err: errors.New("collection name is empty")}
	}
	c, err := s.backend.CreateCollection(ctx, name)
	if err != nil {
		s.logger.Error("failed to create collection", zap.String("name", name), zap.Error(err))
		return nil, &userError{msg: messages.CollectionCreateFailed, err: err}
	}
	return c, nil
}

// Start loads the collections and opens a flow over recipes.
func (s *Service) Start(ctx context.Context, recipes []recipe.Option) (*Flow, error) {
	cols, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return NewFlow(recipes, cols), nil
}
