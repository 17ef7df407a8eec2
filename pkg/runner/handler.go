package runner

import (
	"context"

	"github.com/aretw0/doubtflow/pkg/domain"
)

// IOHandler defines the strategy for interacting with the learner.
// This allows switching between Text (CLI/TUI) and JSON (Structured) modes.
type IOHandler interface {
	// Output presents new transcript entries, oldest first.
	Output(ctx context.Context, msgs []domain.ChatMessage) error

	// Input reads one line from the learner.
	Input(ctx context.Context) (string, error)

	// Signal notifies the handler of a transient state (e.g. "thinking").
	Signal(ctx context.Context, name string, args map[string]any) error

	// SystemOutput presents a meta-message that is not part of the transcript.
	SystemOutput(ctx context.Context, msg string) error
}

// ContentRenderer transforms message content before output (e.g. markdown to ANSI).
type ContentRenderer func(string) (string, error)
