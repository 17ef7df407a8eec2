package tui_test

import (
	"bytes"
	"testing"

	"github.com/aretw0/doubtflow/internal/presentation/tui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderer_KeepsText(t *testing.T) {
	render := tui.NewRenderer(60)
	out, err := render("Solve **2x + 5 = 13**")
	require.NoError(t, err)
	assert.Contains(t, out, "2x + 5 = 13")
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	tui.PrintBanner(&buf)
	assert.Contains(t, buf.String(), "|____/")
}
