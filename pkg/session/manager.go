package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/aretw0/doubtflow/internal/logging"
	"github.com/aretw0/doubtflow/internal/runtime"
	"github.com/aretw0/doubtflow/pkg/domain"
	"github.com/aretw0/doubtflow/pkg/ports"
	"github.com/google/uuid"
)

// DefaultLockTTL bounds how long a distributed session lock may be held.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// live is a running session together with the engine of the flow it was started from.
// Sessions keep their engine, so later edits to the flow do not affect them.
type live struct {
	session *domain.Session
	engine  *runtime.Engine
	gen     uint64 // bumped by every escalation; stale replies carry an older value
}

// Manager owns the live sessions, ensuring safe concurrent operations.
// Every transition runs under the session's lock. The AI round trip is the only
// step performed outside it.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	flows     ports.FlowStore
	escalator ports.Escalator

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	smu      sync.RWMutex
	sessions map[string]*live

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	bus     ports.EventBus // Optional diff fan-out
	hooks   domain.LifecycleHooks
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides DefaultLockTTL for distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithEventBus publishes a diff after every transition.
func WithEventBus(bus ports.EventBus) Option {
	return func(m *Manager) {
		m.bus = bus
	}
}

// WithLifecycleHooks registers observability hooks for sessions and their engines.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(m *Manager) {
		m.hooks = hooks
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the time source used for transcript timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator overrides the session id source (UUIDv4 by default).
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) {
		if gen != nil {
			m.newID = gen
		}
	}
}

// NewManager creates a new Session Manager over the given flow store and escalator.
func NewManager(flows ports.FlowStore, escalator ports.Escalator, opts ...Option) *Manager {
	m := &Manager{
		flows:     flows,
		escalator: escalator,
		locks:     make(map[string]*lockEntry),
		sessions:  make(map[string]*live),
		lockTTL:   DefaultLockTTL,
		logger:    logging.NewNop(), // Default to no-op
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// WithLock executes a function while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	// Distributed Locking
	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// Start begins a new session on the flow's start node.
// A flow whose start node is missing cannot be started; the *domain.GraphReferenceError is returned.
func (m *Manager) Start(ctx context.Context, flowID string) (*domain.Session, error) {
	flow, err := m.flows.Get(ctx, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	engine := runtime.NewEngine(flow,
		runtime.WithLifecycleHooks(m.hooks),
		runtime.WithLogger(m.logger),
		runtime.WithClock(m.now),
	)

	id := m.newID()
	var s *domain.Session
	err = m.WithLock(ctx, id, func(ctx context.Context) error {
		var err error
		s, err = engine.Start(ctx, id)
		if err != nil {
			return err
		}
		m.put(id, &live{session: s, engine: engine})
		return nil
	})
	if err != nil {
		m.logger.Warn("session start refused", "flow_id", flowID, "err", err)
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	if m.hooks.OnSessionStart != nil {
		m.hooks.OnSessionStart(ctx, &domain.SessionEvent{EventBase: m.base(domain.EventSessionStart, s)})
	}
	m.logger.Info("session started", "session_id", id, "flow_id", flowID)
	m.publish(ctx, nil, s)
	return s.Snapshot(), nil
}

// Get returns a snapshot of a live session.
func (m *Manager) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	l, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	m.smu.RLock()
	defer m.smu.RUnlock()
	return l.session.Snapshot(), nil
}

// List returns the ids of the live sessions.
func (m *Manager) List(ctx context.Context) []string {
	m.smu.RLock()
	defer m.smu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Select applies an option click. Returns domain.ErrSessionBusy while an AI request is outstanding.
func (m *Manager) Select(ctx context.Context, sessionID, optionID string) (*domain.Session, error) {
	var out *domain.Session
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		l, err := m.lookup(sessionID)
		if err != nil {
			return err
		}
		prev := m.current(l)
		next, err := l.engine.SelectOption(ctx, prev, optionID)
		if err != nil {
			return err
		}
		m.update(l, next)
		m.publish(ctx, prev, next)
		out = next.Snapshot()
		return nil
	})
	return out, err
}

// Ask submits free text on an AI node and waits for the reply.
//
// The session is marked loading and released while the escalator runs, so other
// sessions (and reads of this one) proceed. When the reply arrives it is applied
// only if the session is still live and no newer exchange superseded it; otherwise
// it is dropped and domain.ErrSessionClosed is returned. Input on a non-AI node,
// or blank input, is ignored and the unchanged session is returned.
func (m *Manager) Ask(ctx context.Context, sessionID, question string) (*domain.Session, runtime.AskResult, error) {
	var (
		loading *domain.Session
		req     *domain.EscalationRequest
		gen     uint64
		engine  *runtime.Engine
	)
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		l, err := m.lookup(sessionID)
		if err != nil {
			return err
		}
		prev := m.current(l)
		next, r, err := l.engine.PrepareAsk(ctx, prev, question)
		if err != nil {
			return err
		}
		loading, req, engine = next, r, l.engine
		if req == nil {
			return nil
		}
		m.smu.Lock()
		l.gen++
		gen = l.gen
		l.session = next
		m.smu.Unlock()
		m.publish(ctx, prev, next)
		return nil
	})
	if err != nil {
		return nil, runtime.AskResult{}, err
	}
	if req == nil {
		return loading.Snapshot(), runtime.AskResult{}, nil
	}

	// In-flight requests are never cancelled; a departed caller only means the reply is discarded.
	started := time.Now()
	answer, askErr := runtime.CallEscalator(context.WithoutCancel(ctx), m.escalator, *req)
	took := time.Since(started)

	var (
		out *domain.Session
		res = runtime.AskResult{Escalated: true}
	)
	err = m.WithLock(context.WithoutCancel(ctx), sessionID, func(ctx context.Context) error {
		l, err := m.lookup(sessionID)
		if err != nil || l.gen != gen {
			m.logger.Info("discarding late ai reply", "session_id", sessionID, "node_id", loading.CurrentNode.ID)
			return domain.ErrSessionClosed
		}
		prev := m.current(l)
		if prev.Status != domain.StatusLoading {
			m.logger.Info("discarding late ai reply", "session_id", sessionID, "status", prev.Status)
			return domain.ErrSessionClosed
		}

		var next *domain.Session
		if askErr != nil {
			next, res.Notice = engine.ApplyFailure(ctx, prev, req.Question, askErr, took)
			res.Err = domain.ClassifyAIError(askErr)
		} else {
			next = engine.ApplyAnswer(ctx, prev, req.Question, answer, took)
		}
		m.update(l, next)
		m.publish(ctx, prev, next)
		out = next.Snapshot()
		return nil
	})
	if err != nil {
		return nil, runtime.AskResult{}, err
	}
	return out, res, nil
}

// End closes and discards a session. Replies still in flight for it are dropped.
func (m *Manager) End(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		l, err := m.lookup(sessionID)
		if err != nil {
			return err
		}
		prev := m.current(l)
		closed := prev.Snapshot()
		closed.Status = domain.StatusClosed

		m.smu.Lock()
		delete(m.sessions, sessionID)
		m.smu.Unlock()

		if m.hooks.OnSessionEnd != nil {
			m.hooks.OnSessionEnd(ctx, &domain.SessionEvent{EventBase: m.base(domain.EventSessionEnd, closed)})
		}
		m.logger.Info("session ended", "session_id", sessionID, "flow_id", closed.FlowID)
		m.publish(ctx, prev, closed)
		return nil
	})
}

func (m *Manager) lookup(sessionID string) (*live, error) {
	m.smu.RLock()
	defer m.smu.RUnlock()
	l, ok := m.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return l, nil
}

func (m *Manager) current(l *live) *domain.Session {
	m.smu.RLock()
	defer m.smu.RUnlock()
	return l.session
}

func (m *Manager) put(id string, l *live) {
	m.smu.Lock()
	defer m.smu.Unlock()
	m.sessions[id] = l
}

func (m *Manager) update(l *live, s *domain.Session) {
	m.smu.Lock()
	defer m.smu.Unlock()
	l.session = s
}

func (m *Manager) publish(ctx context.Context, prev, next *domain.Session) {
	if m.bus == nil {
		return
	}
	diff := domain.Diff(prev, next)
	if diff == nil {
		return
	}
	if err := m.bus.Publish(ctx, next.ID, diff); err != nil {
		m.logger.Warn("failed to publish session diff", "session_id", next.ID, "err", err)
	}
}

func (m *Manager) base(t domain.EventType, s *domain.Session) domain.EventBase {
	return domain.EventBase{
		Timestamp: m.now(),
		Type:      t,
		SessionID: s.ID,
		FlowID:    s.FlowID,
	}
}
