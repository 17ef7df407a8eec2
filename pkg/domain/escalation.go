package domain

import (
	"fmt"
	"strings"
)

// Default values for the escalation context when the flow does not provide them.
const (
	DefaultTopic    = "General"
	DefaultSubtopic = "AI Help"
)

// EscalationRequest is what the engine hands to the completion service on AI-node input.
type EscalationRequest struct {
	Question            string   `json:"question"`
	Subject             string   `json:"subject"`
	Topic               string   `json:"topic"`
	Subtopic            string   `json:"subtopic"`
	ConversationHistory []AITurn `json:"conversationHistory"`

	// Persona carries the AI node's authored prompt, if any.
	Persona string `json:"persona,omitempty"`
}

// PromptMessage is one chat-completion message.
type PromptMessage struct {
	Role    string
	Content string
}

// SystemPrompt renders the fixed tutoring frame for a request.
func SystemPrompt(req EscalationRequest) string {
	var sb strings.Builder
	sb.WriteString("You are an expert tutor helping students with their academic doubts.\n")
	fmt.Fprintf(&sb, "Subject: %s\n", req.Subject)
	fmt.Fprintf(&sb, "Topic: %s\n", req.Topic)
	fmt.Fprintf(&sb, "Subtopic: %s\n\n", req.Subtopic)
	sb.WriteString("Provide clear, educational answers that help students understand concepts.\n")
	sb.WriteString("Break down complex topics into simpler explanations.\n")
	sb.WriteString("Use examples when helpful.\n")
	sb.WriteString("Keep answers concise but comprehensive.")
	if p := strings.TrimSpace(req.Persona); p != "" {
		sb.WriteString("\n\n")
		sb.WriteString(p)
	}
	return sb.String()
}

// BuildPrompt orders the messages sent upstream: system frame, prior history, new question.
func BuildPrompt(req EscalationRequest) []PromptMessage {
	msgs := make([]PromptMessage, 0, len(req.ConversationHistory)+2)
	msgs = append(msgs, PromptMessage{Role: "system", Content: SystemPrompt(req)})
	for _, turn := range req.ConversationHistory {
		msgs = append(msgs, PromptMessage{Role: string(turn.Role), Content: turn.Content})
	}
	msgs = append(msgs, PromptMessage{Role: string(RoleUser), Content: req.Question})
	return msgs
}
