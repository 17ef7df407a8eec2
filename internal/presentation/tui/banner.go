package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the DoubtFlow banner to w.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	lines := []struct{ text, color string }{
		{"  ____              _     _   _____ _", "#34d399"},
		{" |  _ \\  ___  _   _| |__ | |_|  ___| | _____      __", "#2dd4bf"},
		{" | | | |/ _ \\| | | | '_ \\| __| |_  | |/ _ \\ \\ /\\ / /", "#22d3ee"},
		{" | |_| | (_) | |_| | |_) | |_|  _| | | (_) \\ V  V /", "#38bdf8"},
		{" |____/ \\___/ \\__,_|_.__/ \\__|_|   |_|\\___/ \\_/\\_/", "#60a5fa"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}

// Subtle renders s in a dim style for hints and status lines.
func Subtle(s string) string {
	return termenv.String(s).Faint().String()
}
