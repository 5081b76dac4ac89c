// Package wizard drives the three-step recipe generation flow: prompt,
// ingredients, recipe options. Front ends inject a View for confirmation and
// rendering.
package wizard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"piatto/internal/api"
	"piatto/internal/messages"
	"piatto/internal/poller"
	"piatto/internal/recipe"
	"piatto/internal/session"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Step is a wizard position.
type Step int

const (
	StepPrompt      Step = 1
	StepIngredients Step = 2
	StepOptions     Step = 3
)

// ErrBusy is returned when a generation is already in flight.
var ErrBusy = errors.New("wizard: operation in progress")

func init() {
	messages.Register(ErrBusy, messages.Busy)
}

// Backend is the part of the API the wizard needs.
type Backend interface {
	Generate(ctx context.Context, req api.GenerateRequest) (int64, error)
	Options(ctx context.Context, sessionID int64) ([]recipe.Option, error)
	FinishPreparing(ctx context.Context, sessionID int64) error
	ImageAnalysis(ctx context.Context, sessionID int64) (*api.ImageAnalysis, error)
	poller.ImageFetcher
}

// View is the presentation a front end injects.
type View interface {
	// Confirm asks the user a yes/no question.
	Confirm(ctx context.Context, message string) (bool, error)
	// Render is called with a snapshot after every state change.
	Render(State)
}

// State is a snapshot of the wizard.
type State struct {
	Step                Step
	Prompt              string
	Ingredients         []string
	ImageKey            *string
	AnalyzedIngredients []string
	SessionID           int64 // 0 when no preparing session is active
	Options             []recipe.Option
	Images              map[int64]recipe.ImageStatus
	Loading             bool
	Error               string
}

func (s State) clone() State {
	s.Ingredients = append([]string(nil), s.Ingredients...)
	s.AnalyzedIngredients = append([]string(nil), s.AnalyzedIngredients...)
	s.Options = append([]recipe.Option(nil), s.Options...)
	images := make(map[int64]recipe.ImageStatus, len(s.Images))
	for id, st := range s.Images {
		images[id] = st
	}
	s.Images = images
	return s
}

type promptInput struct {
	Prompt string `validate:"required,max=2000"`
}

type promptError struct {
	msg string
	err error
}

func (e *promptError) Error() string       { return "invalid prompt: " + e.err.Error() }
func (e *promptError) Unwrap() error       { return e.err }
func (e *promptError) UserMessage() string { return e.msg }

// Controller owns the wizard state.
type Controller struct {
	backend  Backend
	store    *session.Store
	view     View
	poller   *poller.Poller
	logger   *zap.Logger
	validate *validator.Validate

	// background context for polling, cancelled by Close
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state State
}

// Option configures a Controller.
type Option func(*controllerOptions)

type controllerOptions struct {
	pollInterval time.Duration
	logger       *zap.Logger
}

// WithPollInterval sets the image polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(o *controllerOptions) { o.pollInterval = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *controllerOptions) { o.logger = l }
}

// New creates a Controller at step 1. Call Restore to pick up a stored
// session.
func New(backend Backend, store *session.Store, view View, opts ...Option) *Controller {
	o := controllerOptions{pollInterval: poller.DefaultInterval, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		backend:  backend,
		store:    store,
		view:     view,
		logger:   o.logger,
		validate: validator.New(),
		ctx:      ctx,
		cancel:   cancel,
		state:    State{Step: StepPrompt, Images: map[int64]recipe.ImageStatus{}},
	}
	c.poller = poller.New(backend,
		poller.WithInterval(o.pollInterval),
		poller.WithLogger(o.logger),
		poller.WithOnUpdate(c.onImageUpdate),
	)
	return c
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Poller exposes the image poller, mainly so callers can wait on Done.
func (c *Controller) Poller() *poller.Poller {
	return c.poller
}

// GoToStep moves to step n if it is within [1,3] and clears the error.
func (c *Controller) GoToStep(n Step) bool {
	if n < StepPrompt || n > StepOptions {
		return false
	}
	c.update(func(s *State) {
		s.Step = n
		s.Error = ""
	})
	return true
}

// SetPrompt stores the free-text prompt.
func (c *Controller) SetPrompt(prompt string) {
	c.update(func(s *State) { s.Prompt = strings.TrimSpace(prompt) })
}

// SetIngredients stores the written ingredients, dropping blanks.
func (c *Controller) SetIngredients(ingredients []string) {
	var clean []string
	for _, ing := range ingredients {
		if ing = strings.TrimSpace(ing); ing != "" {
			clean = append(clean, ing)
		}
	}
	c.update(func(s *State) { s.Ingredients = clean })
}

// SetImageKey stores the key of an uploaded fridge photo.
func (c *Controller) SetImageKey(key *string) {
	c.update(func(s *State) { s.ImageKey = key })
}

// SubmitPrompt validates the prompt and advances to the ingredients step.
func (c *Controller) SubmitPrompt() error {
	c.mu.Lock()
	prompt := c.state.Prompt
	c.mu.Unlock()

	if err := c.validatePrompt(prompt); err != nil {
		c.update(func(s *State) { s.Error = messages.For(err) })
		return err
	}
	c.GoToStep(StepIngredients)
	return nil
}

func (c *Controller) validatePrompt(prompt string) error {
	err := c.validate.Struct(promptInput{Prompt: prompt})
	if err == nil {
		return nil
	}
	msg := messages.PromptRequired
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Tag() == "max" {
		msg = messages.PromptTooLong
	}
	return &promptError{msg: msg, err: err}
}

// Generate requests recipe options for the current prompt and ingredients.
// Placeholders are shown while the request is in flight.
func (c *Controller) Generate(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Loading {
		c.mu.Unlock()
		return ErrBusy
	}
	if err := c.validatePrompt(c.state.Prompt); err != nil {
		c.state.Error = messages.For(err)
		snapshot := c.state.clone()
		c.mu.Unlock()
		c.view.Render(snapshot)
		return err
	}

	req := api.GenerateRequest{
		Prompt:             c.state.Prompt,
		WrittenIngredients: append([]string{}, c.state.Ingredients...),
		ImageKey:           c.state.ImageKey,
	}
	if id, ok := c.store.SessionID(); ok {
		req.PreparingSessionID = &id
	}
	c.state.Loading = true
	c.state.Error = ""
	c.state.Options = recipe.Placeholders(recipe.PlaceholderCount)
	c.state.Images = seedImages(c.state.Options)
	snapshot := c.state.clone()
	c.mu.Unlock()
	c.view.Render(snapshot)

	c.poller.Stop()

	sessionID, err := c.backend.Generate(ctx, req)
	if err != nil {
		c.logger.Error("recipe generation failed", zap.Error(err))
		c.update(func(s *State) {
			s.Loading = false
			s.Options = nil
			s.Images = map[int64]recipe.ImageStatus{}
			s.Error = messages.For(err)
		})
		return err
	}
	if err := c.store.StoreSessionID(sessionID); err != nil {
		c.logger.Warn("failed to persist preparing session", zap.Int64("session_id", sessionID), zap.Error(err))
	}

	c.update(func(s *State) {
		s.SessionID = sessionID
		s.Step = StepOptions
	})
	return c.loadOptions(ctx, sessionID)
}

// Refresh re-fetches the options of the active session, replacing
// placeholders with real entries.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	sessionID := c.state.SessionID
	busy := c.state.Loading
	if busy || sessionID == 0 {
		c.mu.Unlock()
		if busy {
			return ErrBusy
		}
		return nil
	}
	c.state.Loading = true
	c.mu.Unlock()

	return c.loadOptions(ctx, sessionID)
}

func (c *Controller) loadOptions(ctx context.Context, sessionID int64) error {
	opts, err := c.backend.Options(ctx, sessionID)
	if err != nil {
		c.logger.Error("failed to fetch recipe options", zap.Int64("session_id", sessionID), zap.Error(err))
		c.update(func(s *State) {
			s.Loading = false
			s.Error = messages.For(err)
		})
		return err
	}

	c.update(func(s *State) {
		s.Loading = false
		s.Error = ""
		s.Options = opts
		s.Images = seedImages(opts)
	})
	c.poller.Start(c.ctx, opts)
	return nil
}

// Restore picks up a stored preparing session. It reports whether a session
// was restored. A session that cannot be fetched is discarded and the wizard
// returns to step 1.
func (c *Controller) Restore(ctx context.Context) (bool, error) {
	sessionID, ok := c.store.SessionID()
	if !ok {
		return false, nil
	}

	c.update(func(s *State) { s.Loading = true })

	opts, err := c.backend.Options(ctx, sessionID)
	if err != nil {
		c.logger.Warn("failed to restore preparing session", zap.Int64("session_id", sessionID), zap.Error(err))
		if clearErr := c.store.Clear(); clearErr != nil {
			c.logger.Warn("failed to clear stored session", zap.Error(clearErr))
		}
		c.reset(messages.RestoreFailed)
		return false, err
	}

	analysis, err := c.backend.ImageAnalysis(ctx, sessionID)
	if err != nil {
		c.logger.Warn("failed to fetch image analysis", zap.Int64("session_id", sessionID), zap.Error(err))
	}

	c.update(func(s *State) {
		s.Step = StepOptions
		s.SessionID = sessionID
		s.Options = opts
		s.Images = seedImages(opts)
		s.Loading = false
		s.Error = ""
		if analysis != nil {
			key := analysis.ImageKey
			if key != "" {
				s.ImageKey = &key
			}
			s.AnalyzedIngredients = analysis.AnalyzedIngredients
		}
	})
	c.poller.Start(c.ctx, opts)
	return true, nil
}

// Back goes one step back. Leaving the options step discards the preparing
// session and needs the user's confirmation.
func (c *Controller) Back(ctx context.Context) error {
	c.mu.Lock()
	step := c.state.Step
	c.mu.Unlock()

	switch step {
	case StepIngredients:
		c.GoToStep(StepPrompt)
		return nil
	case StepOptions:
		ok, err := c.view.Confirm(ctx, messages.ConfirmDiscard)
		if err != nil || !ok {
			return err
		}
		return c.Finish(ctx)
	default:
		return nil
	}
}

// Finish ends the preparing session on the backend, clears the stored id and
// resets the wizard. The local state is reset even if the backend call fails.
func (c *Controller) Finish(ctx context.Context) error {
	c.mu.Lock()
	sessionID := c.state.SessionID
	c.mu.Unlock()
	if sessionID == 0 {
		sessionID, _ = c.store.SessionID()
	}

	var finishErr error
	if sessionID != 0 {
		if err := c.backend.FinishPreparing(ctx, sessionID); err != nil && !api.IsNotFound(err) {
			c.logger.Warn("failed to finish preparing session", zap.Int64("session_id", sessionID), zap.Error(err))
			finishErr = err
		}
	}
	if err := c.store.Clear(); err != nil {
		c.logger.Warn("failed to clear stored session", zap.Error(err))
	}
	c.reset(messages.For(finishErr))
	return finishErr
}

// Reset drops all wizard state without touching the backend.
func (c *Controller) Reset() {
	c.reset("")
}

func (c *Controller) reset(errMsg string) {
	c.poller.Stop()
	c.update(func(s *State) {
		*s = State{Step: StepPrompt, Images: map[int64]recipe.ImageStatus{}, Error: errMsg}
	})
}

// Close stops background polling. The controller must not be used afterwards.
func (c *Controller) Close() {
	c.cancel()
	c.poller.Stop()
}

// RemoveOption drops an option from the visible list, for example after it
// was saved or discarded.
func (c *Controller) RemoveOption(recipeID int64) {
	c.update(func(s *State) {
		kept := s.Options[:0:0]
		for _, o := range s.Options {
			if o.ID != recipeID {
				kept = append(kept, o)
			}
		}
		s.Options = kept
		delete(s.Images, recipeID)
	})
}

func (c *Controller) onImageUpdate(u poller.Update) {
	c.update(func(s *State) {
		for i := range s.Options {
			if s.Options[i].ID == u.Option.ID {
				s.Options[i] = u.Option
				s.Images[u.Option.ID] = u.Status
			}
		}
	})
}

// update applies fn under the lock and renders the result outside it.
func (c *Controller) update(fn func(*State)) {
	c.mu.Lock()
	fn(&c.state)
	snapshot := c.state.clone()
	c.mu.Unlock()
	c.view.Render(snapshot)
}

func seedImages(opts []recipe.Option) map[int64]recipe.ImageStatus {
	images := make(map[int64]recipe.ImageStatus, len(opts))
	for _, o := range opts {
		if o.HasImage() {
			images[o.ID] = recipe.ImageLoaded
		} else {
			images[o.ID] = recipe.ImageLoading
		}
	}
	return images
}

// ParseIngredients splits comma- or newline-separated user input.
func ParseIngredients(input string) []string {
	fields := strings.FieldsFunc(input, func(r rune) bool { return r == ',' || r == '\n' || r == ';' })
	var out []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
