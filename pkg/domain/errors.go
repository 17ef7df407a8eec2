package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFlowNotFound is returned when a flow ID cannot be found in the store.
var ErrFlowNotFound = errors.New("flow not found")

// ErrSessionNotFound is returned when a session ID is unknown or already ended.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionBusy is returned while an AI request is outstanding for the session.
var ErrSessionBusy = errors.New("session is waiting for an AI response")

// ErrSessionClosed is returned when input reaches a session that has ended.
var ErrSessionClosed = errors.New("session closed")

// ErrDraftNotFound is returned when an authoring draft ID is unknown.
var ErrDraftNotFound = errors.New("draft not found")

// ErrInvalidFlow marks authoring validation failures.
var ErrInvalidFlow = errors.New("invalid flow")

// AI service failure kinds.
var (
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrQuotaExhausted    = errors.New("credits exhausted")
	ErrAIUnavailable     = errors.New("ai service error")
	ErrMalformedResponse = errors.New("malformed ai response")
)

// GraphReferenceError reports an option or start reference to a node that does not exist.
type GraphReferenceError struct {
	FlowID     string
	FromNodeID string // empty for the start reference
	OptionID   string
	TargetID   string
}

func (e *GraphReferenceError) Error() string {
	if e.FromNodeID == "" {
		return fmt.Sprintf("flow %q: start node %q not found", e.FlowID, e.TargetID)
	}
	return fmt.Sprintf("flow %q: option %q on node %q points to missing node %q", e.FlowID, e.OptionID, e.FromNodeID, e.TargetID)
}

// AIServiceError wraps a failed escalation with its classified kind.
type AIServiceError struct {
	Kind   error // one of ErrRateLimited, ErrQuotaExhausted, ErrAIUnavailable, ErrMalformedResponse
	Status int   // HTTP status when known
	Err    error
}

func (e *AIServiceError) Error() string {
	msg := e.Kind.Error()
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AIServiceError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ClassifyAIError maps any escalation error to one of the AI failure kinds.
func ClassifyAIError(err error) error {
	switch {
	case errors.Is(err, ErrRateLimited):
		return ErrRateLimited
	case errors.Is(err, ErrQuotaExhausted):
		return ErrQuotaExhausted
	case errors.Is(err, ErrMalformedResponse):
		return ErrMalformedResponse
	default:
		return ErrAIUnavailable
	}
}

// AINotice returns the user-visible message for a failed escalation.
func AINotice(err error) string {
	switch ClassifyAIError(err) {
	case ErrRateLimited:
		return "Rate limit exceeded. Please try again later."
	case ErrQuotaExhausted:
		return "Credits exhausted. Please add credits to continue."
	case ErrMalformedResponse:
		return "The AI service returned an unreadable answer."
	default:
		return "Failed to get AI response."
	}
}

// ValidationError lists every problem found while validating a flow.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid flow: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidFlow
}
