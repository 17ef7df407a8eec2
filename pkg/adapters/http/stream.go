package http

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aretw0/doubtflow/internal/logging"
	"github.com/aretw0/doubtflow/pkg/domain"
)

// StreamManager is the in-process ports.EventBus feeding SSE connections.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan *domain.SessionDiff]struct{} // SessionID -> Set of Channels
	logger      *slog.Logger
}

// NewStreamManager creates an empty StreamManager. A nil logger discards output.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan *domain.SessionDiff]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a listener for sessionID. cancel is idempotent and closes the channel.
func (sm *StreamManager) Subscribe(ctx context.Context, sessionID string) (<-chan *domain.SessionDiff, func(), error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan *domain.SessionDiff, 10)
	if _, ok := sm.subscribers[sessionID]; !ok {
		sm.subscribers[sessionID] = make(map[chan *domain.SessionDiff]struct{})
	}
	sm.subscribers[sessionID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[sessionID]; ok {
				delete(subs, ch)
				close(ch)
				if len(subs) == 0 {
					delete(sm.subscribers, sessionID)
				}
			}
		})
	}, nil
}

// Publish fans diff out to every subscriber of sessionID. Slow subscribers lose messages.
func (sm *StreamManager) Publish(ctx context.Context, sessionID string, diff *domain.SessionDiff) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[sessionID] {
		select {
		case ch <- diff:
		default:
			sm.logger.Warn("SSE: Client buffer full, dropping message", "session_id", sessionID)
		}
	}
	return nil
}

// Subscribers returns the number of listeners of sessionID.
func (sm *StreamManager) Subscribers(sessionID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[sessionID])
}
