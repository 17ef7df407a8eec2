/*
Package runner implements the interactive chat loop over a live session.

It is the bridge between a Conversation (usually *session.Manager) and a terminal or
another process. Input and output go through a pluggable IOHandler:

  - TextHandler: numbered options and free text for interactive CLI usage.
  - JSONHandler: one JSON object per line for headless drivers.

# Usage

	r := runner.NewRunner(
		runner.WithInputHandler(runner.NewTextHandler(os.Stdin, os.Stdout)),
		runner.WithLogger(logger),
	)

	s, err := r.Run(ctx, manager, "flow-math")
*/
package runner
