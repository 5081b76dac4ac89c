// Package cooking runs a guided cooking session: instruction steps and the
// question chat.
package cooking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"piatto/internal/api"
	"piatto/internal/messages"
	"piatto/internal/session"

	"go.uber.org/zap"
)

var (
	ErrNoSession      = errors.New("cooking: no active session")
	ErrEmptyQuestion  = errors.New("cooking: question is empty")
	ErrStepOutOfRange = errors.New("cooking: step out of range")
)

func init() {
	messages.Register(ErrNoSession, messages.NoCookingSession)
	messages.Register(ErrEmptyQuestion, messages.QuestionRequired)
	messages.Register(ErrStepOutOfRange, messages.StepOutOfRange)
}

// Backend is the part of the API a cooking session needs.
type Backend interface {
	StartCooking(ctx context.Context, recipeID int64) (int64, error)
	CookingSession(ctx context.Context, sessionID int64) (*api.CookingSession, error)
	ChangeCookingState(ctx context.Context, sessionID int64, state int) error
	PromptHistory(ctx context.Context, sessionID int64) ([]api.PromptEntry, error)
	AskQuestion(ctx context.Context, sessionID int64, prompt string) (string, error)
	FinishCooking(ctx context.Context, sessionID int64) error
	Instructions(ctx context.Context, recipeID int64) ([]api.Instruction, error)
	DeleteInstructions(ctx context.Context, recipeID int64) error
}

// Service holds the active cooking session.
type Service struct {
	backend Backend
	store   *session.Store
	logger  *zap.Logger
	now     func() time.Time

	mu           sync.Mutex
	current      *api.CookingSession
	history      []api.PromptEntry
	instructions []api.Instruction
}

// NewService creates a Service persisting the session id in store.
func NewService(backend Backend, store *session.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{backend: backend, store: store, logger: logger, now: time.Now}
}

// Start opens a cooking session for recipeID and loads its instructions.
func (s *Service) Start(ctx context.Context, recipeID int64) (*api.CookingSession, error) {
	id, err := s.backend.StartCooking(ctx, recipeID)
	if err != nil {
		return nil, fmt.Errorf("failed to start cooking recipe %d: %w", recipeID, err)
	}
	if err := s.store.StoreSessionID(id); err != nil {
		s.logger.Warn("failed to persist cooking session", zap.Int64("session_id", id), zap.Error(err))
	}

	cs, err := s.backend.CookingSession(ctx, id)
	if err != nil {
		s.logger.Warn("failed to fetch new cooking session", zap.Int64("session_id", id), zap.Error(err))
		cs = &api.CookingSession{ID: id, RecipeID: recipeID}
	}

	s.mu.Lock()
	s.current = cs
	s.history = nil
	s.instructions = nil
	s.mu.Unlock()

	if _, err := s.Instructions(ctx); err != nil {
		return s.Current(), err
	}
	return s.Current(), nil
}

// Resume restores the stored cooking session. A session the backend no
// longer knows is forgotten.
func (s *Service) Resume(ctx context.Context) (*api.CookingSession, error) {
	id, ok := s.store.SessionID()
	if !ok {
		return nil, ErrNoSession
	}
	cs, err := s.backend.CookingSession(ctx, id)
	if err != nil {
		if api.IsNotFound(err) {
			if clearErr := s.store.Clear(); clearErr != nil {
				s.logger.Warn("failed to clear cooking session", zap.Error(clearErr))
			}
			return nil, fmt.Errorf("cooking session %d: %w", id, ErrNoSession)
		}
		return nil, err
	}

	s.mu.Lock()
	if s.current == nil || s.current.ID != cs.ID || s.current.RecipeID != cs.RecipeID {
		s.history = nil
		s.instructions = nil
	}
	s.current = cs
	s.mu.Unlock()
	return s.Current(), nil
}

// Current returns the active session, or nil.
func (s *Service) Current() *api.CookingSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	cs := *s.current
	return &cs
}

func (s *Service) active() (*api.CookingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, ErrNoSession
	}
	cs := *s.current
	return &cs, nil
}

// Instructions returns the instruction steps of the active recipe. They are
// fetched once per session.
func (s *Service) Instructions(ctx context.Context) ([]api.Instruction, error) {
	cs, err := s.active()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	cached := s.instructions
	s.mu.Unlock()
	if cached != nil {
		return append([]api.Instruction(nil), cached...), nil
	}

	steps, err := s.backend.Instructions(ctx, cs.RecipeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load instructions: %w", err)
	}
	if steps == nil {
		steps = []api.Instruction{}
	}
	s.mu.Lock()
	s.instructions = steps
	s.mu.Unlock()
	return append([]api.Instruction(nil), steps...), nil
}

// ResetInstructions drops the generated instructions on the backend.
func (s *Service) ResetInstructions(ctx context.Context) error {
	cs, err := s.active()
	if err != nil {
		return err
	}
	if err := s.backend.DeleteInstructions(ctx, cs.RecipeID); err != nil {
		return fmt.Errorf("failed to reset instructions: %w", err)
	}
	s.mu.Lock()
	s.instructions = nil
	s.mu.Unlock()
	return nil
}

// GoTo moves the session to instruction step (zero-based).
func (s *Service) GoTo(ctx context.Context, step int) error {
	cs, err := s.active()
	if err != nil {
		return err
	}
	steps, err := s.Instructions(ctx)
	if err != nil {
		return err
	}
	if step < 0 || step >= len(steps) {
		return ErrStepOutOfRange
	}
	if err := s.backend.ChangeCookingState(ctx, cs.ID, step); err != nil {
		return fmt.Errorf("failed to change cooking step: %w", err)
	}
	s.mu.Lock()
	if s.current != nil && s.current.ID == cs.ID {
		s.current.State = step
	}
	s.mu.Unlock()
	return nil
}

// Next advances one step.
func (s *Service) Next(ctx context.Context) error {
	cs, err := s.active()
	if err != nil {
		return err
	}
	return s.GoTo(ctx, cs.State+1)
}

// Prev goes back one step.
func (s *Service) Prev(ctx context.Context) error {
	cs, err := s.active()
	if err != nil {
		return err
	}
	return s.GoTo(ctx, cs.State-1)
}

// Ask sends a question to the cooking assistant and returns the answer.
func (s *Service) Ask(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}
	cs, err := s.active()
	if err != nil {
		return "", err
	}

	asked := s.now()
	answer, err := s.backend.AskQuestion(ctx, cs.ID, question)
	if err != nil {
		return "", fmt.Errorf("failed to ask question: %w", err)
	}

	s.mu.Lock()
	s.history = append(s.history,
		api.PromptEntry{Role: "user", Content: question, CreatedAt: asked},
		api.PromptEntry{Role: "assistant", Content: answer, CreatedAt: s.now()},
	)
	s.mu.Unlock()
	return answer, nil
}

// History loads the chat history from the backend.
func (s *Service) History(ctx context.Context) ([]api.PromptEntry, error) {
	cs, err := s.active()
	if err != nil {
		return nil, err
	}
	history, err := s.backend.PromptHistory(ctx, cs.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}
	s.mu.Lock()
	s.history = history
	s.mu.Unlock()
	return append([]api.PromptEntry(nil), history...), nil
}

// LocalHistory returns the chat turns known to the client.
func (s *Service) LocalHistory() []api.PromptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.PromptEntry(nil), s.history...)
}

// Finish closes the session on the backend and forgets it locally.
func (s *Service) Finish(ctx context.Context) error {
	id, ok := s.store.SessionID()
	s.mu.Lock()
	if s.current != nil {
		id, ok = s.current.ID, true
	}
	s.mu.Unlock()
	if !ok {
		return ErrNoSession
	}

	if err := s.backend.FinishCooking(ctx, id); err != nil && !api.IsNotFound(err) {
		return fmt.Errorf("failed to finish cooking session %d: %w", id, err)
	}
	if err := s.store.Clear(); err != nil {
		s.logger.Warn("failed to clear cooking session", zap.Error(err))
	}

	s.mu.Lock()
	s.current = nil
	s.history = nil
	s.instructions = nil
	s.mu.Unlock()
	return nil
}
