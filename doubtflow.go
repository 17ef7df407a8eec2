package doubtflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/doubtflow/internal/logging"
	"github.com/aretw0/doubtflow/internal/runtime"
	"github.com/aretw0/doubtflow/pkg/adapters/memory"
	"github.com/aretw0/doubtflow/pkg/adapters/openai"
	"github.com/aretw0/doubtflow/pkg/authoring"
	"github.com/aretw0/doubtflow/pkg/catalog"
	"github.com/aretw0/doubtflow/pkg/domain"
	"github.com/aretw0/doubtflow/pkg/ports"
	"github.com/aretw0/doubtflow/pkg/session"
)

// Engine is the high-level entry point for the doubtflow library.
// It wires a flow store, a session manager and an authoring draft registry
// and exposes the learner operations directly.
type Engine struct {
	flows     ports.FlowStore
	loaders   []ports.FlowLoader
	escalator ports.Escalator
	sessions  *session.Manager
	drafts    *authoring.Drafts

	sessionOpts []session.Option
	strict      bool
	defaults    bool
	logger      *slog.Logger
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithFlowStore injects the flow collection. The default is an in-memory store.
func WithFlowStore(store ports.FlowStore) Option {
	return func(e *Engine) {
		e.flows = store
	}
}

// WithLoader seeds the store from l when the engine is created.
// Loaders run in the order given.
func WithLoader(l ports.FlowLoader) Option {
	return func(e *Engine) {
		e.loaders = append(e.loaders, l)
	}
}

// WithDefaultFlows seeds the built-in demonstration flows ahead of any loader.
func WithDefaultFlows() Option {
	return func(e *Engine) {
		e.defaults = true
	}
}

// WithEscalator sets the AI completion service. Without one every AI
// question fails with the unavailable notice.
func WithEscalator(esc ports.Escalator) Option {
	return func(e *Engine) {
		e.escalator = esc
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.sessionOpts = append(e.sessionOpts, session.WithLifecycleHooks(hooks))
	}
}

// WithEventBus publishes session diffs to bus.
func WithEventBus(bus ports.EventBus) Option {
	return func(e *Engine) {
		e.sessionOpts = append(e.sessionOpts, session.WithEventBus(bus))
	}
}

// WithLocker adds a distributed lock around every session transition.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.sessionOpts = append(e.sessionOpts, session.WithLocker(locker))
	}
}

// WithStrictReferences makes authoring saves reject dangling references.
func WithStrictReferences() Option {
	return func(e *Engine) {
		e.strict = true
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New initializes a new Engine.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	eng := &Engine{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.flows == nil {
		eng.flows = memory.NewStore()
	}
	if eng.escalator == nil {
		eng.escalator = openai.Unavailable()
	}

	loaders := eng.loaders
	if eng.defaults {
		loaders = append([]ports.FlowLoader{catalog.Loader{}}, loaders...)
	}
	for _, l := range loaders {
		flows, err := l.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load flows: %w", err)
		}
		for _, f := range flows {
			if err := eng.flows.Add(ctx, f); err != nil {
				return nil, fmt.Errorf("failed to seed flow %s: %w", f.ID, err)
			}
		}
		eng.logger.Debug("Flows seeded", "count", len(flows))
	}

	sessionOpts := append([]session.Option{session.WithLogger(eng.logger)}, eng.sessionOpts...)
	eng.sessions = session.NewManager(eng.flows, eng.escalator, sessionOpts...)

	builderOpts := []authoring.BuilderOption{authoring.WithLogger(eng.logger)}
	if eng.strict {
		builderOpts = append(builderOpts, authoring.WithStrictReferences())
	}
	eng.drafts = authoring.NewDrafts(eng.flows, builderOpts...)

	return eng, nil
}

// Flows returns the flow store.
func (e *Engine) Flows() ports.FlowStore {
	return e.flows
}

// Sessions returns the live-session manager.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// Drafts returns the authoring draft registry.
func (e *Engine) Drafts() *authoring.Drafts {
	return e.drafts
}

// NewBuilder returns a standalone authoring builder committing to the engine's store.
func (e *Engine) NewBuilder(opts ...authoring.BuilderOption) *authoring.Builder {
	base := []authoring.BuilderOption{authoring.WithLogger(e.logger)}
	if e.strict {
		base = append(base, authoring.WithStrictReferences())
	}
	return authoring.NewBuilder(e.flows, append(base, opts...)...)
}

// Start opens a session at the flow's start node.
func (e *Engine) Start(ctx context.Context, flowID string) (*domain.Session, error) {
	return e.sessions.Start(ctx, flowID)
}

// Get returns a snapshot of a live session.
func (e *Engine) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	return e.sessions.Get(ctx, sessionID)
}

// Select follows one of the options offered by the session's last message.
func (e *Engine) Select(ctx context.Context, sessionID, optionID string) (*domain.Session, error) {
	return e.sessions.Select(ctx, sessionID, optionID)
}

// Ask sends a free-text question on an AI node. AI failures are reported in
// the result and the transcript, never as the returned error.
func (e *Engine) Ask(ctx context.Context, sessionID, question string) (*domain.Session, runtime.AskResult, error) {
	return e.sessions.Ask(ctx, sessionID, question)
}

// End discards a session.
func (e *Engine) End(ctx context.Context, sessionID string) error {
	return e.sessions.End(ctx, sessionID)
}
