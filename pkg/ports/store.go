package ports

import (
	"context"

	"github.com/aretw0/doubtflow/pkg/domain"
)

// FlowStore defines the authored flow collection.
// Implementations hand out copies; callers never alias stored flows.
type FlowStore interface {
	// Add appends a flow. Ids are not checked for collisions.
	Add(ctx context.Context, flow domain.DoubtFlow) error

	// Update replaces the flow with the given id, keeping its position.
	// It is a no-op when the id is unknown.
	Update(ctx context.Context, id string, flow domain.DoubtFlow) error

	// Delete removes the flow with the given id. Unknown ids are ignored.
	Delete(ctx context.Context, id string) error

	// BySubject returns the flows whose subject equals subject, in insertion order.
	BySubject(ctx context.Context, subject string) ([]domain.DoubtFlow, error)

	// Get retrieves a flow by id.
	// Returns domain.ErrFlowNotFound if no flow matches.
	Get(ctx context.Context, id string) (domain.DoubtFlow, error)

	// List returns every flow in insertion order.
	List(ctx context.Context) ([]domain.DoubtFlow, error)

	// Subjects returns the distinct subjects in first-seen order.
	Subjects(ctx context.Context) ([]string, error)
}
