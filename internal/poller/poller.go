// Package poller waits for the asynchronous image generation of recipe
// options to finish.
package poller

import (
	"context"
	"sync"
	"time"

	"piatto/internal/recipe"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultInterval is the time between two polling rounds.
const DefaultInterval = time.Second

// ImageFetcher returns the current image url of a recipe, nil while the image
// is still being generated.
type ImageFetcher interface {
	RecipeImage(ctx context.Context, recipeID int64) (*string, error)
}

// Update describes one status transition.
type Update struct {
	Option recipe.Option
	Status recipe.ImageStatus
}

// Poller polls image status for the real options of one generation.
type Poller struct {
	fetcher  ImageFetcher
	interval time.Duration
	onUpdate func(Update)
	logger   *zap.Logger

	mu       sync.Mutex
	options  []recipe.Option
	statuses map[int64]recipe.ImageStatus
	cancel   context.CancelFunc
	done     chan struct{}
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithOnUpdate registers a callback for every status transition. It is called
// from the polling goroutine and never after Stop returns.
func WithOnUpdate(fn func(Update)) Option {
	return func(p *Poller) { p.onUpdate = fn }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// New creates a Poller. Call Start to begin polling.
func New(fetcher ImageFetcher, opts ...Option) *Poller {
	p := &Poller{
		fetcher:  fetcher,
		interval: DefaultInterval,
		logger:   zap.NewNop(),
		statuses: map[int64]recipe.ImageStatus{},
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	close(p.done)
	return p
}

// Start seeds the statuses from options and starts polling the real options
// that have no image yet. A running poll is stopped first.
func (p *Poller) Start(ctx context.Context, options []recipe.Option) {
	p.Stop()

	p.mu.Lock()
	p.options = append([]recipe.Option(nil), options...)
	p.statuses = make(map[int64]recipe.ImageStatus, len(options))
	for _, o := range options {
		if o.HasImage() {
			p.statuses[o.ID] = recipe.ImageLoaded
		} else {
			p.statuses[o.ID] = recipe.ImageLoading
		}
	}
	pending := p.pendingLocked()
	if len(pending) == 0 {
		p.mu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go p.run(ctx, cancel, done)
}

// Stop cancels polling and waits for the polling goroutine to exit. Results of
// requests still in flight are discarded.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-done
}

// Done is closed once polling has finished or was stopped.
func (p *Poller) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Statuses returns a snapshot of the per-recipe status.
func (p *Poller) Statuses() map[int64]recipe.ImageStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[int64]recipe.ImageStatus, len(p.statuses))
	for id, s := range p.statuses {
		out[id] = s
	}
	return out
}

// Options returns a snapshot of the options, with image urls filled in as
// they arrived.
func (p *Poller) Options() []recipe.Option {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]recipe.Option(nil), p.options...)
}

func (p *Poller) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)
	defer cancel()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		p.mu.Lock()
		pending := p.pendingLocked()
		p.mu.Unlock()

		p.poll(ctx, pending)

		p.mu.Lock()
		remaining := len(p.pendingLocked())
		p.mu.Unlock()
		if remaining == 0 {
			p.logger.Debug("image polling finished")
			return
		}
	}
}

// poll issues one fetch per pending id and waits for all of them.
func (p *Poller) poll(ctx context.Context, pending []int64) {
	var g errgroup.Group
	for _, id := range pending {
		g.Go(func() error {
			url, err := p.fetcher.RecipeImage(ctx, id)
			if ctx.Err() != nil {
				return nil
			}
			if err != nil {
				p.logger.Warn("image status request failed", zap.Int64("recipe_id", id), zap.Error(err))
				p.apply(ctx, id, nil, recipe.ImageError)
				return nil
			}
			if url != nil && *url != "" {
				p.apply(ctx, id, url, recipe.ImageLoaded)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Poller) apply(ctx context.Context, id int64, url *string, status recipe.ImageStatus) {
	p.mu.Lock()
	if ctx.Err() != nil || p.statuses[id] != recipe.ImageLoading {
		p.mu.Unlock()
		return
	}
	p.statuses[id] = status
	var updated recipe.Option
	for i := range p.options {
		if p.options[i].ID == id {
			if url != nil {
				p.options[i].ImageURL = url
			}
			updated = p.options[i]
			break
		}
	}
	onUpdate := p.onUpdate
	p.mu.Unlock()

	if onUpdate != nil {
		onUpdate(Update{Option: updated, Status: status})
	}
}

// pendingLocked returns the real ids still loading. Placeholders never
// qualify. p.mu must be held.
func (p *Poller) pendingLocked() []int64 {
	var ids []int64
	for _, o := range p.options {
		if o.IsPlaceholder() || o.ID == 0 {
			continue
		}
		if p.statuses[o.ID] == recipe.ImageLoading {
			ids = append(ids, o.ID)
		}
	}
	return ids
}
