package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/aretw0/doubtflow"
	"github.com/aretw0/doubtflow/internal/presentation/tui"
	"github.com/aretw0/doubtflow/pkg/domain"
	"github.com/aretw0/doubtflow/pkg/runner"
	"golang.org/x/term"
)

// ChatOptions configures an interactive chat session.
type ChatOptions struct {
	FlowID string
	JSON   bool
	Quiet  bool // no banner or system lines
	In     io.Reader
	Out    io.Writer
}

// RunChat runs one learner session in the terminal.
// Without a flow id the learner picks one from the store.
func RunChat(ctx context.Context, app *App, opts ChatOptions) error {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	quiet := opts.Quiet || opts.JSON

	if !quiet {
		tui.PrintBanner(opts.Out)
		fmt.Fprintln(opts.Out, tui.Subtle(fmt.Sprintf("doubtflow %s - type /quit to leave", strings.TrimSpace(doubtflow.Version))))
	}

	maxInput := 0
	if app.Config != nil {
		maxInput = app.Config.Server.MaxInputSize
	}

	var handler runner.IOHandler
	if opts.JSON {
		h := runner.NewJSONHandler(opts.In, opts.Out)
		h.MaxInput = maxInput
		handler = h
	} else {
		textOpts := []runner.TextHandlerOption{runner.WithTextHandlerMaxInput(maxInput)}
		if f, ok := opts.Out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			width, _, err := term.GetSize(int(f.Fd()))
			if err != nil {
				width = 0
			}
			textOpts = append(textOpts, runner.WithTextHandlerRenderer(tui.NewRenderer(width)))
		}
		handler = runner.NewTextHandler(opts.In, opts.Out, textOpts...)
	}

	flowID := opts.FlowID
	if flowID == "" {
		var err error
		flowID, err = pickFlow(ctx, app, handler, opts.Out, quiet)
		if err != nil {
			return handleExecutionError(err)
		}
	}

	r := runner.NewRunner(runner.WithLogger(app.Logger), runner.WithInputHandler(handler))
	s, err := r.Run(ctx, app.Engine, flowID)
	if err != nil {
		return handleExecutionError(err)
	}
	if !quiet && s != nil {
		printSystemMessage(opts.Out, "Session ended at '%s' node.", s.CurrentNode.ID)
	}
	return nil
}

// pickFlow lists the stored flows and reads a choice by number or id.
func pickFlow(ctx context.Context, app *App, handler runner.IOHandler, out io.Writer, quiet bool) (string, error) {
	flows, err := app.Engine.Flows().List(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list flows: %w", err)
	}
	switch len(flows) {
	case 0:
		return "", errors.New("no flows available; pass --flows or enable the default flows")
	case 1:
		return flows[0].ID, nil
	}

	if !quiet {
		fmt.Fprintln(out, "Available flows:")
		for i, f := range flows {
			fmt.Fprintf(out, "  %d) %s [%s]\n", i+1, f.Name, f.Subject)
		}
	}
	for {
		line, err := handler.Input(ctx)
		if err != nil {
			return "", err
		}
		if id, ok := matchFlow(flows, line); ok {
			return id, nil
		}
		_ = handler.SystemOutput(ctx, "Choose a flow by number.")
	}
}

func matchFlow(flows []domain.DoubtFlow, line string) (string, bool) {
	line = strings.TrimSpace(line)
	if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(flows) {
		return flows[n-1].ID, true
	}
	for _, f := range flows {
		if f.ID == line {
			return f.ID, true
		}
	}
	return "", false
}
