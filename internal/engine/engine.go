package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/notestream/internal/acl"
	"github.com/roach88/notestream/internal/composer"
	"github.com/roach88/notestream/internal/domain"
	"github.com/roach88/notestream/internal/metadata"
	"github.com/roach88/notestream/internal/projector"
	"github.com/roach88/notestream/internal/recalc"
	"github.com/roach88/notestream/internal/store"
	"github.com/roach88/notestream/internal/subscription"
)

// Config carries the stream settings of every component. Zero values
// keep each component's defaults.
type Config struct {
	Projector      projector.Config
	Recalc         recalc.Config
	FollowersLimit int
	MaxSizeLimit   int
}

// Engine runs mutation hooks and serves streams over one store.
//
// Thread-safety model:
//   - Enqueue(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - Apply() and the typed mutation methods: callers serialize writes
//     themselves, or go through Enqueue
type Engine struct {
	store     *store.Store
	meta      metadata.Provider
	authority acl.Authority
	clock     domain.Clock
	cfg       Config

	subs     *subscription.Service
	composer *composer.Composer
	queue    *mutationQueue
}

// writer holds the mutation components, all bound to one store.
type writer struct {
	store     *store.Store
	projector *projector.Projector
	recalc    *recalc.Recalculator
	subs      *subscription.Service
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for note timestamps and the
// recalculation windows.
func WithClock(c domain.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithConfig sets the component settings.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithAuthority replaces the metadata role table as ACL authority.
func WithAuthority(a acl.Authority) Option {
	return func(e *Engine) { e.authority = a }
}

// New creates an engine over s.
func New(s *store.Store, meta metadata.Provider, opts ...Option) *Engine {
	e := &Engine{
		store: s,
		meta:  meta,
		clock: domain.SystemClock{},
		queue: newMutationQueue(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.authority == nil {
		e.authority = acl.NewRoleTable(meta)
	}

	e.subs = e.newSubscriptions(s)
	e.composer = composer.New(s, meta, e.authority,
		composer.WithMaxSizeLimit(e.cfg.MaxSizeLimit),
	)
	return e
}

func (e *Engine) newSubscriptions(s *store.Store) *subscription.Service {
	return subscription.New(s, e.meta, e.authority,
		subscription.WithFollowersLimit(e.cfg.FollowersLimit),
	)
}

// inTx runs fn with components bound to one store transaction. Nothing fn
// writes is kept when it returns an error.
func (e *Engine) inTx(ctx context.Context, fn func(w *writer) error) error {
	return e.store.InTx(ctx, func(tx *store.Store) error {
		return fn(&writer{
			store: tx,
			projector: projector.New(tx, e.meta,
				projector.WithClock(e.clock),
				projector.WithConfig(e.cfg.Projector),
			),
			recalc: recalc.New(tx, e.meta,
				recalc.WithClock(e.clock),
				recalc.WithConfig(e.cfg.Recalc),
			),
			subs: e.newSubscriptions(tx),
		})
	})
}

// Store returns the underlying store.
func (e *Engine) Store() *store.Store { return e.store }

// Subscriptions returns the subscription service.
func (e *Engine) Subscriptions() *subscription.Service { return e.subs }

// Enqueue submits a mutation to the Run loop. Returns false once the
// engine has been stopped.
func (e *Engine) Enqueue(m Mutation) bool {
	return e.queue.Enqueue(m)
}

// Run applies enqueued mutations one at a time until ctx is cancelled or
// Stop is called. A failed mutation is logged and skipped.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting")

	for {
		if m, ok := e.queue.TryDequeue(); ok {
			if _, err := e.Apply(ctx, m); err != nil {
				logMutationError(m, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()
		case _, open := <-e.queue.Wait():
			// The signal channel is closed with the queue.
			if !open && e.queue.Len() == 0 {
				slog.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run drains what is left and returns.
func (e *Engine) Stop() {
	e.queue.Close()
}

// UserStream returns the stream of userID as seen by actor.
func (e *Engine) UserStream(ctx context.Context, actor *domain.User, userID string, p composer.Params) (composer.Page, error) {
	return e.composer.UserStream(ctx, actor, userID, p)
}

// EntityStream returns the stream of one entity as seen by actor.
func (e *Engine) EntityStream(ctx context.Context, actor *domain.User, entityType, id string, p composer.Params) (composer.Page, error) {
	return e.composer.EntityStream(ctx, actor, entityType, id, p)
}

// ExplainUserStream compiles the user stream of userID without running it.
func (e *Engine) ExplainUserStream(ctx context.Context, actor *domain.User, userID string, p composer.Params) (composer.Explain, error) {
	return e.composer.ExplainUserStream(ctx, actor, userID, p)
}

// User loads a user by ID.
func (e *Engine) User(ctx context.Context, id string) (*domain.User, error) {
	u, err := e.store.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

func actorID(actor *domain.User) string {
	if actor == nil {
		return domain.SystemUserID
	}
	return actor.ID
}
