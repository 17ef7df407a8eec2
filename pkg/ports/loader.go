package ports

import (
	"context"

	"github.com/aretw0/doubtflow/pkg/domain"
)

// FlowLoader reads flow definitions from an external source (files, embedded catalog).
// Loaders are read-only: nothing is ever written back.
type FlowLoader interface {
	Load(ctx context.Context) ([]domain.DoubtFlow, error)
}
