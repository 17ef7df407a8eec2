package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/doubtflow/pkg/domain"
)

// Loader implements ports.FlowLoader over a fixed set of flows.
type Loader struct {
	flows []domain.DoubtFlow
}

// NewLoader creates a new Loader that serves copies of the provided flows.
func NewLoader(flows ...domain.DoubtFlow) *Loader {
	l := &Loader{flows: make([]domain.DoubtFlow, len(flows))}
	for i, f := range flows {
		l.flows[i] = f.Clone()
	}
	return l
}

// NewFromJSON creates a Loader from raw JSON flow documents.
// This keeps test fixtures close to the wire format.
func NewFromJSON(docs ...string) (*Loader, error) {
	flows := make([]domain.DoubtFlow, 0, len(docs))
	for i, doc := range docs {
		var f domain.DoubtFlow
		if err := json.Unmarshal([]byte(doc), &f); err != nil {
			return nil, fmt.Errorf("failed to decode flow document #%d: %w", i+1, err)
		}
		if f.ID == "" {
			return nil, fmt.Errorf("flow document #%d missing ID", i+1)
		}
		flows = append(flows, f)
	}
	return &Loader{flows: flows}, nil
}

// Load returns copies of the configured flows.
func (l *Loader) Load(ctx context.Context) ([]domain.DoubtFlow, error) {
	out := make([]domain.DoubtFlow, len(l.flows))
	for i, f := range l.flows {
		out[i] = f.Clone()
	}
	return out, nil
}
