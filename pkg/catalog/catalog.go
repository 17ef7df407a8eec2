// Package catalog ships the demonstration flows every new store starts with.
package catalog

import (
	"context"
	_ "embed"

	"github.com/aretw0/doubtflow/pkg/adapters/file"
	"github.com/aretw0/doubtflow/pkg/domain"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Defaults returns fresh copies of the built-in flows ("Algebra Help" and "Physics Concepts").
func Defaults() ([]domain.DoubtFlow, error) {
	return file.Parse(defaultsYAML, file.FormatYAML)
}

// Loader implements ports.FlowLoader over the built-in flows.
type Loader struct{}

func (Loader) Load(ctx context.Context) ([]domain.DoubtFlow, error) {
	return Defaults()
}
