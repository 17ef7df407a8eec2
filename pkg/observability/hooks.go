package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/doubtflow/pkg/domain"
)

// LoggingHooks logs every lifecycle event at debug level, escalation failures at warn.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSessionStart: func(ctx context.Context, e *domain.SessionEvent) {
			logger.InfoContext(ctx, "session_start", "session_id", e.SessionID, "flow_id", e.FlowID)
		},
		OnSessionEnd: func(ctx context.Context, e *domain.SessionEvent) {
			logger.InfoContext(ctx, "session_end", "session_id", e.SessionID, "flow_id", e.FlowID)
		},
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_enter", "session_id", e.SessionID, "node_id", e.NodeID, "type", e.NodeType)
		},
		OnOptionSelected: func(ctx context.Context, e *domain.OptionEvent) {
			logger.DebugContext(ctx, "option_selected",
				"session_id", e.SessionID,
				"node_id", e.NodeID,
				"option_id", e.OptionID,
				"resolved", e.Resolved,
			)
		},
		OnEscalation: func(ctx context.Context, e *domain.EscalationEvent) {
			logger.DebugContext(ctx, "escalation", "session_id", e.SessionID, "node_id", e.NodeID)
		},
		OnEscalationResult: func(ctx context.Context, e *domain.EscalationEvent) {
			if e.Err != nil {
				logger.WarnContext(ctx, "escalation_failed",
					"session_id", e.SessionID,
					"duration", e.Duration,
					"outcome", Outcome(e.Err),
					"error", e.Err,
				)
				return
			}
			logger.DebugContext(ctx, "escalation_result", "session_id", e.SessionID, "duration", e.Duration)
		},
	}
}

// Chain fans each event out to every hook set, in order.
func Chain(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range sets {
		out.OnSessionStart = chain(out.OnSessionStart, h.OnSessionStart)
		out.OnSessionEnd = chain(out.OnSessionEnd, h.OnSessionEnd)
		out.OnNodeEnter = chain(out.OnNodeEnter, h.OnNodeEnter)
		out.OnOptionSelected = chain(out.OnOptionSelected, h.OnOptionSelected)
		out.OnEscalation = chain(out.OnEscalation, h.OnEscalation)
		out.OnEscalationResult = chain(out.OnEscalationResult, h.OnEscalationResult)
	}
	return out
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
