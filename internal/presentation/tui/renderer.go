package tui

import (
	"strings"

	"github.com/aretw0/doubtflow/pkg/runner"
	"github.com/charmbracelet/glamour"
)

// NewRenderer returns a markdown renderer for chat content using glamour.
// Content passes through unchanged if glamour cannot be initialized.
func NewRenderer(width int) runner.ContentRenderer {
	opts := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return func(markdown string) (string, error) { return markdown, nil }
	}

	return func(markdown string) (string, error) {
		out, err := r.Render(markdown)
		if err != nil {
			return markdown, err
		}
		return strings.Trim(out, "\n"), nil
	}
}
