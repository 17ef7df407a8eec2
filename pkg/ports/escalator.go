package ports

import (
	"context"

	"github.com/aretw0/doubtflow/pkg/domain"
)

// Escalator forwards a learner's free-text question to a completion service.
// A non-nil error means no answer is available; implementations do not retry.
type Escalator interface {
	Ask(ctx context.Context, req domain.EscalationRequest) (string, error)
}
