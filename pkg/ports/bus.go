package ports

import (
	"context"

	"github.com/aretw0/doubtflow/pkg/domain"
)

// EventBus fans session diffs out to subscribers.
type EventBus interface {
	// Publish delivers diff to the current subscribers of sessionID.
	// Slow subscribers may miss messages; Publish never blocks on them.
	Publish(ctx context.Context, sessionID string, diff *domain.SessionDiff) error

	// Subscribe returns a channel of diffs for sessionID and a cancel function
	// that MUST be called to release the subscription. The channel is closed on cancel.
	Subscribe(ctx context.Context, sessionID string) (<-chan *domain.SessionDiff, func(), error)
}
