package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/doubtflow/internal/logging"
	"github.com/aretw0/doubtflow/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Bus implements ports.EventBus over Redis pub/sub, one channel per session.
// Replicas sharing a Redis see each other's transcript diffs.
type Bus struct {
	client backend.UniversalClient
	prefix string
	buffer int
	logger *slog.Logger
}

// BusOption configures the Bus.
type BusOption func(*Bus)

// WithBusLogger sets the logger used for dropped or malformed messages.
func WithBusLogger(logger *slog.Logger) BusOption {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithBuffer sets the per-subscriber buffer size (default 16).
func WithBuffer(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// NewBus creates a Bus. Channels are named prefix + "session:" + sessionID.
func NewBus(client backend.UniversalClient, prefix string, opts ...BusOption) *Bus {
	b := &Bus{
		client: client,
		prefix: prefix,
		buffer: 16,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "redis-bus")
	return b
}

func (b *Bus) channel(sessionID string) string {
	return b.prefix + "session:" + sessionID
}

// Publish encodes diff as JSON and publishes it on the session channel.
func (b *Bus) Publish(ctx context.Context, sessionID string, diff *domain.SessionDiff) error {
	raw, err := json.Marshal(diff)
	if err != nil {
		return fmt.Errorf("failed to encode diff: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(sessionID), raw).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe listens on the session channel until cancel is called or ctx is done.
func (b *Bus) Subscribe(ctx context.Context, sessionID string) (<-chan *domain.SessionDiff, func(), error) {
	sub := b.client.Subscribe(ctx, b.channel(sessionID))

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan *domain.SessionDiff, b.buffer)
	var once sync.Once
	cancel := func() {
		once.Do(func() { _ = sub.Close() })
	}

	go func() {
		defer close(out)
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case m, ok := <-msgs:
				if !ok || m == nil {
					return
				}
				var diff domain.SessionDiff
				if err := json.Unmarshal([]byte(m.Payload), &diff); err != nil {
					b.logger.Warn("bad redis diff payload", "session_id", sessionID, "error", err)
					continue
				}
				select {
				case out <- &diff:
				default:
					b.logger.Warn("subscriber buffer full, dropping diff", "session_id", sessionID)
				}
			}
		}
	}()

	return out, cancel, nil
}
