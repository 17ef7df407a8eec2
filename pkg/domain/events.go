package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventSessionStart     EventType = "session_start"
	EventSessionEnd       EventType = "session_end"
	EventNodeEnter        EventType = "node_enter"
	EventOptionSelected   EventType = "option_selected"
	EventEscalation       EventType = "escalation"
	EventEscalationResult EventType = "escalation_result"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	FlowID    string    `json:"flow_id"`
}

// SessionEvent represents a session being started or ended.
type SessionEvent struct {
	EventBase
}

// NodeEvent represents entering a node.
type NodeEvent struct {
	EventBase
	NodeID   string   `json:"node_id"`
	NodeType NodeType `json:"node_type"`
}

// OptionEvent represents a learner picking an option.
type OptionEvent struct {
	EventBase
	NodeID   string `json:"node_id"`
	OptionID string `json:"option_id"`
	TargetID string `json:"target_id"`
	Resolved bool   `json:"resolved"`
}

// EscalationEvent represents an AI round trip.
type EscalationEvent struct {
	EventBase
	NodeID   string        `json:"node_id"`
	Question string        `json:"question,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Err      error         `json:"-"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnSessionStart     func(context.Context, *SessionEvent)
	OnSessionEnd       func(context.Context, *SessionEvent)
	OnNodeEnter        func(context.Context, *NodeEvent)
	OnOptionSelected   func(context.Context, *OptionEvent)
	OnEscalation       func(context.Context, *EscalationEvent)
	OnEscalationResult func(context.Context, *EscalationEvent)
}
