package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/aretw0/doubtflow/internal/logging"
	"github.com/aretw0/doubtflow/internal/runtime"
	"github.com/aretw0/doubtflow/pkg/domain"
)

// SignalThinking is sent to the handler while an AI request is outstanding.
const SignalThinking = "thinking"

// CommandSelectPrefix selects an option by id regardless of the current list.
const CommandSelectPrefix = "/select "

// Conversation is the session surface the runner drives. *session.Manager implements it.
type Conversation interface {
	Start(ctx context.Context, flowID string) (*domain.Session, error)
	Select(ctx context.Context, sessionID, optionID string) (*domain.Session, error)
	Ask(ctx context.Context, sessionID, question string) (*domain.Session, runtime.AskResult, error)
	End(ctx context.Context, sessionID string) error
}

// Runner handles the chat loop of one session using the provided IO.
type Runner struct {
	Handler  IOHandler
	Logger   *slog.Logger
	Renderer ContentRenderer
}

// NewRunner creates a new Runner. Without a handler it talks over Stdin/Stdout.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{Logger: logging.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts a session on flowID and loops until the learner quits, input ends or ctx is done.
// The session is ended on return; the last observed snapshot is returned.
func (r *Runner) Run(ctx context.Context, conv Conversation, flowID string) (*domain.Session, error) {
	handler := r.resolveHandler()
	signals := NewSignalManager(ctx)
	defer signals.Stop()

	s, err := conv.Start(ctx, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to start chat: %w", err)
	}
	defer func() {
		if err := conv.End(context.WithoutCancel(ctx), s.ID); err != nil {
			r.Logger.Debug("end session", "session_id", s.ID, "error", err)
		}
	}()

	if err := handler.Output(ctx, s.Transcript); err != nil {
		return s, fmt.Errorf("output error: %w", err)
	}
	shown := len(s.Transcript)

	for {
		line, err := handler.Input(signals.Context())
		if err != nil {
			if errors.Is(err, io.EOF) {
				signals.CheckRace()
				return s, nil
			}
			if signals.Context().Err() != nil {
				return s, nil
			}
			return s, fmt.Errorf("input error: %w", err)
		}

		cmd := Interpret(line, s)
		var next *domain.Session
		switch cmd.Kind {
		case CommandEmpty:
			continue
		case CommandQuit:
			return s, nil
		case CommandUnknown:
			_ = handler.SystemOutput(ctx, "Choose an option by number.")
			continue
		case CommandSelect:
			next, err = conv.Select(ctx, s.ID, cmd.Arg)
		case CommandAsk:
			_ = handler.Signal(ctx, SignalThinking, nil)
			var res runtime.AskResult
			next, res, err = conv.Ask(ctx, s.ID, cmd.Arg)
			if err == nil && res.Notice != "" {
				_ = handler.SystemOutput(ctx, res.Notice)
			}
		}

		if err != nil {
			if errors.Is(err, domain.ErrSessionBusy) {
				_ = handler.SystemOutput(ctx, "Still waiting for the previous answer.")
				continue
			}
			return s, err
		}

		if err := handler.Output(ctx, next.Transcript[shown:]); err != nil {
			return next, fmt.Errorf("output error: %w", err)
		}
		shown = len(next.Transcript)
		s = next
		r.Logger.Debug("turn", "session_id", s.ID, "node_id", s.CurrentNode.ID)
	}
}

func (r *Runner) resolveHandler() IOHandler {
	if r.Handler != nil {
		return r.Handler
	}
	r.Handler = NewTextHandler(os.Stdin, os.Stdout, WithTextHandlerRenderer(r.Renderer))
	return r.Handler
}

// CommandKind classifies a line of learner input.
type CommandKind int

const (
	CommandEmpty CommandKind = iota
	CommandQuit
	CommandSelect
	CommandAsk
	CommandUnknown
)

// Command is an interpreted line of input.
type Command struct {
	Kind CommandKind
	Arg  string // option id for CommandSelect, question for CommandAsk
}

// Interpret maps a line to a command against the session's current options.
// Options match by number, id or label (case-insensitive); other text is a question on AI nodes.
func Interpret(line string, s *domain.Session) Command {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return Command{Kind: CommandEmpty}
	case "/quit", "/exit", "/q":
		return Command{Kind: CommandQuit}
	}
	if id, ok := strings.CutPrefix(line, CommandSelectPrefix); ok {
		return Command{Kind: CommandSelect, Arg: strings.TrimSpace(id)}
	}

	opts := activeOptions(s)
	if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(opts) {
		return Command{Kind: CommandSelect, Arg: opts[n-1].ID}
	}
	for _, opt := range opts {
		if opt.ID == line || strings.EqualFold(opt.Label, line) {
			return Command{Kind: CommandSelect, Arg: opt.ID}
		}
	}

	if s.CurrentNode.Type == domain.NodeTypeAI {
		return Command{Kind: CommandAsk, Arg: line}
	}
	return Command{Kind: CommandUnknown}
}

// activeOptions returns the options offered by the last assistant message.
func activeOptions(s *domain.Session) []domain.FlowOption {
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		if s.Transcript[i].Role == domain.RoleAssistant {
			return s.Transcript[i].Options
		}
	}
	return nil
}
