package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/doubtflow/pkg/adapters/memory"
	"github.com/aretw0/doubtflow/pkg/domain"
	"github.com/aretw0/doubtflow/pkg/ports"
	"github.com/aretw0/doubtflow/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFlow() domain.DoubtFlow {
	return domain.DoubtFlow{
		ID:          "f1",
		Name:        "Algebra Help",
		Subject:     "Mathematics",
		StartNodeID: "Q1",
		Nodes: []domain.FlowNode{
			{ID: "Q1", Type: domain.NodeTypeQuestion, Content: "Q1", Options: []domain.FlowOption{
				{ID: "A", Label: "A", NextNodeID: "R1"},
				{ID: "AI", Label: "Ask AI", NextNodeID: "ai1"},
			}},
			{ID: "R1", Type: domain.NodeTypeAnswer, Content: "R1", Options: []domain.FlowOption{
				{ID: "B", Label: "B", NextNodeID: "Q1"},
			}},
			{ID: "ai1", Type: domain.NodeTypeAI, Content: "Ask me"},
		},
	}
}

type escalatorFunc func(ctx context.Context, req domain.EscalationRequest) (string, error)

func (f escalatorFunc) Ask(ctx context.Context, req domain.EscalationRequest) (string, error) {
	return f(ctx, req)
}

// gatedEscalator blocks every call until release is closed.
type gatedEscalator struct {
	entered chan struct{}
	release chan struct{}
	answer  string
	err     error
}

func newGated(answer string, err error) *gatedEscalator {
	return &gatedEscalator{entered: make(chan struct{}, 1), release: make(chan struct{}), answer: answer, err: err}
}

func (g *gatedEscalator) Ask(ctx context.Context, req domain.EscalationRequest) (string, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.answer, g.err
}

// recordingBus captures published diffs.
type recordingBus struct {
	mu    sync.Mutex
	diffs []*domain.SessionDiff
}

func (b *recordingBus) Publish(ctx context.Context, sessionID string, diff *domain.SessionDiff) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.diffs = append(b.diffs, diff)
	return nil
}

func (b *recordingBus) Subscribe(ctx context.Context, sessionID string) (<-chan *domain.SessionDiff, func(), error) {
	return nil, func() {}, errors.New("not supported")
}

func (b *recordingBus) all() []*domain.SessionDiff {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*domain.SessionDiff(nil), b.diffs...)
}

func newManager(t *testing.T, esc ports.Escalator, opts ...session.Option) *session.Manager {
	t.Helper()
	store := memory.NewStore(testFlow())
	var n atomic.Int64
	opts = append([]session.Option{session.WithIDGenerator(func() string {
		return fmt.Sprintf("s%d", n.Add(1))
	})}, opts...)
	return session.NewManager(store, esc, opts...)
}

func toAI(t *testing.T, m *session.Manager) string {
	t.Helper()
	ctx := context.Background()
	s, err := m.Start(ctx, "f1")
	require.NoError(t, err)
	_, err = m.Select(ctx, s.ID, "AI")
	require.NoError(t, err)
	return s.ID
}

func TestManager_Start(t *testing.T) {
	ctx := context.Background()

	t.Run("Unknown Flow", func(t *testing.T) {
		_, err := newManager(t, nil).Start(ctx, "nope")
		assert.ErrorIs(t, err, domain.ErrFlowNotFound)
	})

	t.Run("Dangling Start", func(t *testing.T) {
		flow := testFlow()
		flow.StartNodeID = "ghost"
		m := session.NewManager(memory.NewStore(flow), nil)

		_, err := m.Start(ctx, "f1")
		var refErr *domain.GraphReferenceError
		require.ErrorAs(t, err, &refErr)
		assert.Empty(t, m.List(ctx), "no session exists without a valid current node")
	})

	t.Run("Flow Edits Do Not Affect Running Sessions", func(t *testing.T) {
		store := memory.NewStore(testFlow())
		m := session.NewManager(store, nil)
		s, err := m.Start(ctx, "f1")
		require.NoError(t, err)

		edited := testFlow()
		edited.Nodes[1].Content = "edited"
		require.NoError(t, store.Update(ctx, "f1", edited))

		s, err = m.Select(ctx, s.ID, "A")
		require.NoError(t, err)
		assert.Equal(t, "R1", s.CurrentNode.Content)
	})
}

func TestManager_SelectPublishesDiffs(t *testing.T) {
	ctx := context.Background()
	bus := &recordingBus{}
	m := newManager(t, nil, session.WithEventBus(bus))

	s, err := m.Start(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "s1", s.ID)

	s, err = m.Select(ctx, s.ID, "A")
	require.NoError(t, err)
	assert.Equal(t, "R1", s.CurrentNode.ID)

	_, err = m.Select(ctx, s.ID, "unknown")
	require.NoError(t, err)

	diffs := bus.all()
	require.Len(t, diffs, 2, "no-op selections publish nothing")
	assert.Len(t, diffs[0].Appended, 1)
	require.NotNil(t, diffs[1].CurrentNodeID)
	assert.Equal(t, "R1", *diffs[1].CurrentNodeID)
	assert.Len(t, diffs[1].Appended, 2)

	_, err = m.Select(ctx, "missing", "A")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestManager_AskLoadingState(t *testing.T) {
	ctx := context.Background()
	gate := newGated("42", nil)
	m := newManager(t, gate)
	id := toAI(t, m)

	type result struct {
		s   *domain.Session
		err error
	}
	done := make(chan result, 1)
	go func() {
		s, _, err := m.Ask(ctx, id, "meaning of life?")
		done <- result{s, err}
	}()
	<-gate.entered

	loading, err := m.Get(ctx, id)
	require.NoError(t, err, "reads are not blocked by an outstanding request")
	assert.Equal(t, domain.StatusLoading, loading.Status)

	_, err = m.Select(ctx, id, "anything")
	assert.ErrorIs(t, err, domain.ErrSessionBusy)
	_, _, err = m.Ask(ctx, id, "again")
	assert.ErrorIs(t, err, domain.ErrSessionBusy)

	close(gate.release)
	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, domain.StatusActive, r.s.Status)
	assert.Len(t, r.s.AIHistory, 2)
	last, _ := r.s.LastMessage()
	assert.Equal(t, "42", last.Content)
}

func TestManager_LateReplyDiscarded(t *testing.T) {
	ctx := context.Background()
	gate := newGated("too late", nil)
	bus := &recordingBus{}
	m := newManager(t, gate, session.WithEventBus(bus))
	id := toAI(t, m)

	done := make(chan error, 1)
	go func() {
		_, _, err := m.Ask(ctx, id, "q")
		done <- err
	}()
	<-gate.entered

	require.NoError(t, m.End(ctx, id))
	close(gate.release)

	assert.ErrorIs(t, <-done, domain.ErrSessionClosed)
	_, err := m.Get(ctx, id)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	diffs := bus.all()
	last := diffs[len(diffs)-1]
	require.NotNil(t, last.Status)
	assert.Equal(t, domain.StatusClosed, *last.Status, "nothing is published after the session closed")
}

func TestManager_CallerCancellationDoesNotAbortRequest(t *testing.T) {
	gate := newGated("answer", nil)
	m := newManager(t, gate)
	id := toAI(t, m)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := m.Ask(ctx, id, "q")
		done <- err
	}()
	<-gate.entered
	cancel()
	close(gate.release)
	require.NoError(t, <-done)

	s, err := m.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, s.AIHistory, 2)
}

func TestManager_AskFailure(t *testing.T) {
	esc := escalatorFunc(func(context.Context, domain.EscalationRequest) (string, error) {
		return "", &domain.AIServiceError{Kind: domain.ErrQuotaExhausted, Status: 402}
	})
	m := newManager(t, esc)
	id := toAI(t, m)

	s, res, err := m.Ask(context.Background(), id, "q")
	require.NoError(t, err)
	assert.ErrorIs(t, res.Err, domain.ErrQuotaExhausted)
	assert.Equal(t, "Credits exhausted. Please add credits to continue.", res.Notice)
	assert.Empty(t, s.AIHistory)
	assert.Equal(t, domain.StatusActive, s.Status)
}

func TestManager_AskOffAINode(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	esc := escalatorFunc(func(context.Context, domain.EscalationRequest) (string, error) {
		calls.Add(1)
		return "x", nil
	})
	m := newManager(t, esc)
	s, err := m.Start(ctx, "f1")
	require.NoError(t, err)

	got, res, err := m.Ask(ctx, s.ID, "hello")
	require.NoError(t, err)
	assert.False(t, res.Escalated)
	assert.Equal(t, s, got)
	assert.Zero(t, calls.Load())
}

func TestManager_ConcurrentSelects(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, nil)
	s, err := m.Start(ctx, "f1")
	require.NoError(t, err)

	// A and B alternate; whichever is not on the current node is a no-op.
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); _, _ = m.Select(ctx, s.ID, "A") }()
		go func() { defer wg.Done(); _, _ = m.Select(ctx, s.ID, "B") }()
	}
	wg.Wait()

	final, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	// Each applied transition adds exactly one user and one assistant entry.
	assert.Equal(t, 1, len(final.Transcript)%2)
	for i := 1; i < len(final.Transcript); i += 2 {
		assert.Equal(t, domain.RoleUser, final.Transcript[i].Role)
		assert.Equal(t, domain.RoleAssistant, final.Transcript[i+1].Role)
	}
}

type countingLocker struct {
	locks, unlocks atomic.Int32
}

func (l *countingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	l.locks.Add(1)
	return func(context.Context) error {
		l.unlocks.Add(1)
		return nil
	}, nil
}

func TestManager_DistributedLocker(t *testing.T) {
	ctx := context.Background()
	locker := &countingLocker{}
	m := newManager(t, escalatorFunc(func(context.Context, domain.EscalationRequest) (string, error) {
		return "ok", nil
	}), session.WithLocker(locker))

	id := toAI(t, m)
	_, _, err := m.Ask(ctx, id, "q")
	require.NoError(t, err)
	require.NoError(t, m.End(ctx, id))

	// Start, Select, Ask (prepare + apply), End
	assert.Equal(t, int32(5), locker.locks.Load())
	assert.Equal(t, locker.locks.Load(), locker.unlocks.Load())
}

func TestManager_SessionHooks(t *testing.T) {
	ctx := context.Background()
	var started, ended []string
	hooks := domain.LifecycleHooks{
		OnSessionStart: func(_ context.Context, e *domain.SessionEvent) { started = append(started, e.SessionID) },
		OnSessionEnd:   func(_ context.Context, e *domain.SessionEvent) { ended = append(ended, e.FlowID) },
	}
	m := newManager(t, nil, session.WithLifecycleHooks(hooks))

	s, err := m.Start(ctx, "f1")
	require.NoError(t, err)
	require.NoError(t, m.End(ctx, s.ID))
	assert.ErrorIs(t, m.End(ctx, s.ID), domain.ErrSessionNotFound)

	assert.Equal(t, []string{"s1"}, started)
	assert.Equal(t, []string{"f1"}, ended)
}
