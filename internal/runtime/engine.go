package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/doubtflow/internal/logging"
	"github.com/aretw0/doubtflow/pkg/domain"
	"github.com/aretw0/doubtflow/pkg/ports"
)

// Synthesized option ids and labels offered after an AI exchange.
const (
	OptionFollowUp = "followup"
	OptionRetry    = "retry"
	OptionBack     = "back"

	LabelFollowUp = "Ask follow-up"
	LabelRetry    = "Try again"
	LabelBack     = "Back to menu"
)

// Apology is the assistant entry appended when an AI exchange fails.
const Apology = "Sorry, I encountered an error. Would you like to try again?"

// Engine is the traversal state machine over one fixed flow.
// It never mutates the sessions it is given: every transition returns a new snapshot.
type Engine struct {
	graph  *domain.Graph
	hooks  domain.LifecycleHooks
	logger *slog.Logger
	now    func() time.Time
}

// EngineOption defines a functional option for configuring the Engine.
type EngineOption func(*Engine)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the transcript timestamp source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an engine for flow.
func NewEngine(flow domain.DoubtFlow, opts ...EngineOption) *Engine {
	e := &Engine{
		graph:  domain.NewGraph(flow),
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("flow_id", flow.ID)
	return e
}

// Graph exposes the indexed flow the engine traverses.
func (e *Engine) Graph() *domain.Graph {
	return e.graph
}

// Start enters the flow's start node and returns the new session.
// A dangling start reference is returned as *domain.GraphReferenceError.
func (e *Engine) Start(ctx context.Context, sessionID string) (*domain.Session, error) {
	start, err := e.graph.Start()
	if err != nil {
		return nil, err
	}

	s := &domain.Session{
		ID:         sessionID,
		FlowID:     e.graph.FlowID(),
		Transcript: []domain.ChatMessage{},
		AIHistory:  []domain.AITurn{},
		Status:     domain.StatusActive,
	}
	e.enter(ctx, s, start)
	return s, nil
}

// SelectOption applies an option click on the current node.
// Unknown option ids and dangling targets leave the current node unchanged.
func (e *Engine) SelectOption(ctx context.Context, s *domain.Session, optionID string) (*domain.Session, error) {
	if err := checkAccepting(s); err != nil {
		return nil, err
	}
	next := s.Snapshot()

	current := next.CurrentNode
	opt, ok := current.Option(optionID)
	if !ok {
		e.logger.Debug("option not on current node", "session_id", s.ID, "node_id", current.ID, "option_id", optionID)
		return next, nil
	}

	e.appendMessage(next, domain.RoleUser, opt.Label, nil)

	target, resolved := e.graph.Node(opt.NextNodeID)
	if e.hooks.OnOptionSelected != nil {
		e.hooks.OnOptionSelected(ctx, &domain.OptionEvent{
			EventBase: e.base(domain.EventOptionSelected, next.ID),
			NodeID:    current.ID,
			OptionID:  opt.ID,
			TargetID:  opt.NextNodeID,
			Resolved:  resolved,
		})
	}
	if !resolved {
		refErr := &domain.GraphReferenceError{
			FlowID:     e.graph.FlowID(),
			FromNodeID: current.ID,
			OptionID:   opt.ID,
			TargetID:   opt.NextNodeID,
		}
		e.logger.Warn("dangling option reference", "session_id", s.ID, "error", refErr)
		return next, nil
	}

	e.enter(ctx, next, target)
	return next, nil
}

// PrepareAsk records a free-text question on an AI node and builds the escalation request.
// The returned session is in the loading state. When the current node is not an AI
// node, or the question is blank, the input is ignored and req is nil.
func (e *Engine) PrepareAsk(ctx context.Context, s *domain.Session, question string) (next *domain.Session, req *domain.EscalationRequest, err error) {
	if err := checkAccepting(s); err != nil {
		return nil, nil, err
	}
	next = s.Snapshot()
	if next.CurrentNode.Type != domain.NodeTypeAI {
		return next, nil, nil
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return next, nil, nil
	}

	e.appendMessage(next, domain.RoleUser, question, nil)
	next.Status = domain.StatusLoading

	topic := e.graph.Name()
	if topic == "" {
		topic = domain.DefaultTopic
	}
	history := make([]domain.AITurn, len(next.AIHistory))
	copy(history, next.AIHistory)

	req = &domain.EscalationRequest{
		Question:            question,
		Subject:             e.graph.Subject(),
		Topic:               topic,
		Subtopic:            domain.DefaultSubtopic,
		ConversationHistory: history,
		Persona:             next.CurrentNode.AIPrompt,
	}
	if e.hooks.OnEscalation != nil {
		e.hooks.OnEscalation(ctx, &domain.EscalationEvent{
			EventBase: e.base(domain.EventEscalation, next.ID),
			NodeID:    next.CurrentNode.ID,
			Question:  question,
		})
	}
	return next, req, nil
}

// ApplyAnswer folds a successful AI reply back into a loading session.
func (e *Engine) ApplyAnswer(ctx context.Context, s *domain.Session, question, answer string, took time.Duration) *domain.Session {
	next := s.Snapshot()
	next.AIHistory = append(next.AIHistory,
		domain.AITurn{Role: domain.RoleUser, Content: question},
		domain.AITurn{Role: domain.RoleAssistant, Content: answer},
	)
	opts := []domain.FlowOption{
		{ID: OptionFollowUp, Label: LabelFollowUp, NextNodeID: next.CurrentNode.ID},
		{ID: OptionBack, Label: LabelBack, NextNodeID: e.graph.StartNodeID()},
	}
	next.CurrentNode.Options = opts
	next.Status = domain.StatusActive
	e.appendMessage(next, domain.RoleAssistant, answer, opts)
	e.escalationResult(ctx, next, question, took, nil)
	return next
}

// ApplyFailure folds a failed AI exchange back into a loading session.
// AI history is left untouched. The returned notice is the user-visible description of the failure kind.
func (e *Engine) ApplyFailure(ctx context.Context, s *domain.Session, question string, cause error, took time.Duration) (*domain.Session, string) {
	next := s.Snapshot()
	opts := []domain.FlowOption{
		{ID: OptionRetry, Label: LabelRetry, NextNodeID: next.CurrentNode.ID},
		{ID: OptionBack, Label: LabelBack, NextNodeID: e.graph.StartNodeID()},
	}
	next.CurrentNode.Options = opts
	next.Status = domain.StatusActive
	e.appendMessage(next, domain.RoleAssistant, Apology, opts)

	notice := domain.AINotice(cause)
	e.logger.Warn("ai escalation failed", "session_id", s.ID, "node_id", next.CurrentNode.ID, "notice", notice, "error", cause)
	e.escalationResult(ctx, next, question, took, cause)
	return next, notice
}

// AskResult describes the outcome of a synchronous Ask.
type AskResult struct {
	// Escalated is false when the input was ignored (not on an AI node, or blank).
	Escalated bool
	// Notice is set when the exchange failed.
	Notice string
	// Err is the classified failure, if any.
	Err error
}

// Ask runs a full AI round trip without releasing the session in between.
// It is meant for single-owner callers (the terminal chat, tests); concurrent
// hosts go through the session manager which splits PrepareAsk and Apply*.
func (e *Engine) Ask(ctx context.Context, s *domain.Session, question string, escalator ports.Escalator) (*domain.Session, AskResult, error) {
	loading, req, err := e.PrepareAsk(ctx, s, question)
	if err != nil || req == nil {
		return loading, AskResult{}, err
	}

	started := time.Now()
	answer, askErr := callEscalator(ctx, escalator, *req)
	took := time.Since(started)
	if askErr != nil {
		next, notice := e.ApplyFailure(ctx, loading, req.Question, askErr, took)
		return next, AskResult{Escalated: true, Notice: notice, Err: domain.ClassifyAIError(askErr)}, nil
	}
	return e.ApplyAnswer(ctx, loading, req.Question, answer, took), AskResult{Escalated: true}, nil
}

// CallEscalator invokes escalator and normalizes its outcome: blank answers are
// malformed responses and panics are converted to errors.
func CallEscalator(ctx context.Context, escalator ports.Escalator, req domain.EscalationRequest) (string, error) {
	return callEscalator(ctx, escalator, req)
}

func callEscalator(ctx context.Context, escalator ports.Escalator, req domain.EscalationRequest) (answer string, err error) {
	if escalator == nil {
		return "", &domain.AIServiceError{Kind: domain.ErrAIUnavailable, Err: errors.New("no escalator configured")}
	}
	defer func() {
		if r := recover(); r != nil {
			answer = ""
			err = &domain.AIServiceError{Kind: domain.ErrAIUnavailable, Err: fmt.Errorf("escalator panic: %v", r)}
		}
	}()
	answer, err = escalator.Ask(ctx, req)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(answer) == "" {
		return "", &domain.AIServiceError{Kind: domain.ErrMalformedResponse, Err: errors.New("empty answer")}
	}
	return answer, nil
}

func checkAccepting(s *domain.Session) error {
	switch s.Status {
	case domain.StatusLoading:
		return domain.ErrSessionBusy
	case domain.StatusClosed:
		return domain.ErrSessionClosed
	}
	return nil
}

// enter makes node current and announces it. AI nodes are announced without options.
func (e *Engine) enter(ctx context.Context, s *domain.Session, node domain.FlowNode) {
	s.CurrentNode = node
	if node.Type == domain.NodeTypeAI {
		e.appendMessage(s, domain.RoleAssistant, node.Content, nil)
	} else {
		e.appendMessage(s, domain.RoleAssistant, node.Content, node.Options)
	}
	if e.hooks.OnNodeEnter != nil {
		e.hooks.OnNodeEnter(ctx, &domain.NodeEvent{
			EventBase: e.base(domain.EventNodeEnter, s.ID),
			NodeID:    node.ID,
			NodeType:  node.Type,
		})
	}
}

func (e *Engine) appendMessage(s *domain.Session, role domain.Role, content string, opts []domain.FlowOption) {
	s.Seq++
	s.Transcript = append(s.Transcript, domain.ChatMessage{
		ID:        fmt.Sprintf("msg-%d", s.Seq),
		Role:      role,
		Content:   content,
		Timestamp: e.now(),
		Options:   domain.CloneOptions(opts),
	})
}

func (e *Engine) escalationResult(ctx context.Context, s *domain.Session, question string, took time.Duration, err error) {
	if e.hooks.OnEscalationResult == nil {
		return
	}
	e.hooks.OnEscalationResult(ctx, &domain.EscalationEvent{
		EventBase: e.base(domain.EventEscalationResult, s.ID),
		NodeID:    s.CurrentNode.ID,
		Question:  question,
		Duration:  took,
		Err:       err,
	})
}

func (e *Engine) base(t domain.EventType, sessionID string) domain.EventBase {
	return domain.EventBase{
		Timestamp: e.now(),
		Type:      t,
		SessionID: sessionID,
		FlowID:    e.graph.FlowID(),
	}
}
