// Package library tracks the save/discard decision for each generated recipe
// option, with a short undo window after every decision.
package library

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"piatto/internal/messages"
	"piatto/internal/recipe"

	"go.uber.org/zap"
)

// DefaultUndoWindow is how long a decision can be reverted.
const DefaultUndoWindow = 5 * time.Second

var (
	// ErrUndoExpired is returned by Undo after the window closed.
	ErrUndoExpired = errors.New("library: undo window expired")
	// ErrNotPending is returned when a decision was already made.
	ErrNotPending = errors.New("library: recipe already decided")
	// ErrNothingToUndo is returned by Undo for a pending recipe.
	ErrNothingToUndo = errors.New("library: nothing to undo")
	// ErrUnknownRecipe is returned for ids outside the tracked options.
	ErrUnknownRecipe = errors.New("library: unknown recipe")
)

func init() {
	messages.Register(ErrUndoExpired, messages.UndoExpired)
}

// Backend is the part of the API the tracker needs.
type Backend interface {
	SaveRecipe(ctx context.Context, recipeID int64) error
	UnsaveRecipe(ctx context.Context, recipeID int64) error
	RemoveCurrentRecipe(ctx context.Context, sessionID, recipeID int64) ([]int64, error)
	AddCurrentRecipe(ctx context.Context, sessionID, recipeID int64) ([]int64, error)
}

// Entry is one tracked option.
type Entry struct {
	Option    recipe.Option
	Status    recipe.Status
	ChangedAt time.Time
}

// Tracker holds the decisions for the options of one preparing session.
type Tracker struct {
	backend   Backend
	sessionID int64
	window    time.Duration
	now       func() time.Time
	logger    *zap.Logger

	mu      sync.Mutex
	order   []int64
	entries map[int64]*Entry
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithUndoWindow overrides DefaultUndoWindow.
func WithUndoWindow(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.window = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// NewTracker starts tracking options of a preparing session. Placeholders
// are skipped.
func NewTracker(backend Backend, sessionID int64, options []recipe.Option, opts ...Option) *Tracker {
	t := &Tracker{
		backend:   backend,
		sessionID: sessionID,
		window:    DefaultUndoWindow,
		now:       time.Now,
		logger:    zap.NewNop(),
		entries:   make(map[int64]*Entry, len(options)),
	}
	for _, opt := range opts {
		opt(t)
	}
	for _, o := range options {
		if o.IsPlaceholder() {
			continue
		}
		if _, dup := t.entries[o.ID]; dup {
			continue
		}
		t.order = append(t.order, o.ID)
		t.entries[o.ID] = &Entry{Option: o, Status: recipe.StatusPending}
	}
	return t
}

// Save adds a recipe to the library and takes it out of the session's
// current options. If the second step fails, the save is reverted on a best
// effort basis and the recipe stays pending.
func (t *Tracker) Save(ctx context.Context, recipeID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, err := t.pendingLocked(recipeID)
	if err != nil {
		return err
	}

	if err := t.backend.SaveRecipe(ctx, recipeID); err != nil {
		return fmt.Errorf("failed to save recipe %d: %w", recipeID, err)
	}
	if _, err := t.backend.RemoveCurrentRecipe(ctx, t.sessionID, recipeID); err != nil {
		t.logger.Warn("removing saved recipe from session failed, reverting save",
			zap.Int64("recipe_id", recipeID), zap.Int64("session_id", t.sessionID), zap.Error(err))
		errs := []error{fmt.Errorf("failed to remove recipe %d from session: %w", recipeID, err)}
		if uerr := t.backend.UnsaveRecipe(ctx, recipeID); uerr != nil {
			errs = append(errs, fmt.Errorf("failed to revert save of recipe %d: %w", recipeID, uerr))
		}
		if _, aerr := t.backend.AddCurrentRecipe(ctx, t.sessionID, recipeID); aerr != nil {
			errs = append(errs, fmt.Errorf("failed to restore recipe %d in session: %w", recipeID, aerr))
		}
		return errors.Join(errs...)
	}

	e.Status = recipe.StatusSaved
	e.ChangedAt = t.now()
	return nil
}

// Discard takes a recipe out of the session's current options.
func (t *Tracker) Discard(ctx context.Context, recipeID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, err := t.pendingLocked(recipeID)
	if err != nil {
		return err
	}
	if _, err := t.backend.RemoveCurrentRecipe(ctx, t.sessionID, recipeID); err != nil {
		return fmt.Errorf("failed to discard recipe %d: %w", recipeID, err)
	}
	e.Status = recipe.StatusDiscarded
	e.ChangedAt = t.now()
	return nil
}

// Undo reverts the last decision on a recipe while the undo window is open.
func (t *Tracker) Undo(ctx context.Context, recipeID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[recipeID]
	if !ok {
		return ErrUnknownRecipe
	}
	if e.Status == recipe.StatusPending {
		return ErrNothingToUndo
	}
	if t.now().Sub(e.ChangedAt) > t.window {
		return ErrUndoExpired
	}

	if e.Status == recipe.StatusSaved {
		if err := t.backend.UnsaveRecipe(ctx, recipeID); err != nil {
			return fmt.Errorf("failed to unsave recipe %d: %w", recipeID, err)
		}
	}
	if _, err := t.backend.AddCurrentRecipe(ctx, t.sessionID, recipeID); err != nil {
		return fmt.Errorf("failed to restore recipe %d: %w", recipeID, err)
	}
	e.Status = recipe.StatusPending
	e.ChangedAt = t.now()
	return nil
}

// Status returns the status of a tracked recipe.
func (t *Tracker) Status(recipeID int64) (recipe.Status, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[recipeID]
	if !ok {
		return "", false
	}
	return e.Status, true
}

// CanUndo reports whether the undo window of a decided recipe is still open.
func (t *Tracker) CanUndo(recipeID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[recipeID]
	return ok && e.Status != recipe.StatusPending && t.now().Sub(e.ChangedAt) <= t.window
}

// Entries returns all tracked options in their original order.
func (t *Tracker) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.entries[id])
	}
	return out
}

// Pending returns the options still awaiting a decision.
func (t *Tracker) Pending() []recipe.Option {
	return t.withStatus(recipe.StatusPending)
}

// Saved returns the options saved to the library.
func (t *Tracker) Saved() []recipe.Option {
	return t.withStatus(recipe.StatusSaved)
}

func (t *Tracker) withStatus(s recipe.Status) []recipe.Option {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []recipe.Option
	for _, id := range t.order {
		if e := t.entries[id]; e.Status == s {
			out = append(out, e.Option)
		}
	}
	return out
}

func (t *Tracker) pendingLocked(recipeID int64) (*Entry, error) {
	e, ok := t.entries[recipeID]
	if !ok {
		return nil, ErrUnknownRecipe
	}
	if e.Status != recipe.StatusPending {
		return nil, ErrNotPending
	}
	return e, nil
}

// SaveAll is the select-then-bulk-save model: it saves every selected recipe
// and stops at the first failure.
func (t *Tracker) SaveAll(ctx context.Context, recipeIDs []int64) error {
	for _, id := range recipeIDs {
		if err := t.Save(ctx, id); err != nil && !errors.Is(err, ErrNotPending) {
			return err
		}
	}
	return nil
}
