package domain

import "time"

// Role identifies who authored a transcript entry or AI turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is an append-only transcript entry.
type ChatMessage struct {
	ID        string       `json:"id"`
	Role      Role         `json:"role"`
	Content   string       `json:"content"`
	Timestamp time.Time    `json:"timestamp"`
	Options   []FlowOption `json:"options,omitempty"`
}

// AITurn is one message of the conversation history sent to the completion service.
type AITurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SessionStatus defines whether a session accepts input.
type SessionStatus string

const (
	StatusActive  SessionStatus = "active"  // Accepting option clicks and free text
	StatusLoading SessionStatus = "loading" // AI request outstanding
	StatusClosed  SessionStatus = "closed"  // Ended; late replies are dropped
)

// Session is one learner's live traversal of a flow.
type Session struct {
	ID     string `json:"id"`
	FlowID string `json:"flowId"`

	// CurrentNode always belongs to the flow the session was started from.
	// On AI nodes, Options holds the options synthesized by the last exchange.
	CurrentNode FlowNode `json:"currentNode"`

	Transcript []ChatMessage `json:"transcript"`

	// AIHistory spans every AI exchange of the session and is never reset.
	AIHistory []AITurn `json:"aiHistory"`

	Status SessionStatus `json:"status"`

	// Seq feeds message ids; it only grows.
	Seq int `json:"-"`
}

// Snapshot returns a deep copy of the session.
func (s *Session) Snapshot() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.CurrentNode = s.CurrentNode.Clone()
	if s.Transcript != nil {
		c.Transcript = make([]ChatMessage, len(s.Transcript))
		for i, m := range s.Transcript {
			m.Options = CloneOptions(m.Options)
			c.Transcript[i] = m
		}
	}
	if s.AIHistory != nil {
		c.AIHistory = make([]AITurn, len(s.AIHistory))
		copy(c.AIHistory, s.AIHistory)
	}
	return &c
}

// LastMessage returns the most recent transcript entry.
func (s *Session) LastMessage() (ChatMessage, bool) {
	if len(s.Transcript) == 0 {
		return ChatMessage{}, false
	}
	return s.Transcript[len(s.Transcript)-1], true
}
