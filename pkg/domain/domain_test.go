package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aretw0/doubtflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFlow() domain.DoubtFlow {
	return domain.DoubtFlow{
		ID:          "f1",
		Name:        "Algebra Help",
		Subject:     "Mathematics",
		StartNodeID: "q1",
		Nodes: []domain.FlowNode{
			{ID: "q1", Type: domain.NodeTypeQuestion, Content: "Pick", Options: []domain.FlowOption{
				{ID: "a", Label: "Answer", NextNodeID: "r1"},
				{ID: "b", Label: "Ask AI", NextNodeID: "ai1"},
			}},
			{ID: "r1", Type: domain.NodeTypeAnswer, Content: "Here", Options: []domain.FlowOption{
				{ID: "back", Label: "Back", NextNodeID: "q1"},
			}},
			{ID: "ai1", Type: domain.NodeTypeAI, Content: "Ask me"},
		},
	}
}

func TestGraph_Lookup(t *testing.T) {
	flow := sampleFlow()
	g := domain.NewGraph(flow)

	start, err := g.Start()
	require.NoError(t, err)
	assert.Equal(t, "q1", start.ID)

	n, ok := g.Node("r1")
	require.True(t, ok)
	assert.Equal(t, domain.NodeTypeAnswer, n.Type)

	_, ok = g.Node("missing")
	assert.False(t, ok)

	t.Run("Isolated From Source", func(t *testing.T) {
		flow.Nodes[0].Options[0].NextNodeID = "mutated"
		n, _ := g.Node("q1")
		assert.Equal(t, "r1", n.Options[0].NextNodeID)

		n.Options[0].Label = "changed"
		again, _ := g.Node("q1")
		assert.Equal(t, "Answer", again.Options[0].Label)
	})

	t.Run("Duplicate Ids First Wins", func(t *testing.T) {
		dup := sampleFlow()
		dup.Nodes = append(dup.Nodes, domain.FlowNode{ID: "q1", Type: domain.NodeTypeAnswer, Content: "shadow"})
		n, _ := domain.NewGraph(dup).Node("q1")
		assert.Equal(t, "Pick", n.Content)
	})
}

func TestGraph_DanglingStart(t *testing.T) {
	flow := sampleFlow()
	flow.StartNodeID = "nowhere"

	_, err := domain.NewGraph(flow).Start()
	var refErr *domain.GraphReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "nowhere", refErr.TargetID)
	assert.Empty(t, refErr.FromNodeID)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, domain.Validate(sampleFlow()))

	broken := sampleFlow()
	broken.StartNodeID = "ghost"
	broken.Nodes[1].Options[0].NextNodeID = "gone"
	broken.Nodes = append(broken.Nodes, domain.FlowNode{ID: "r1", Type: "poll"})

	err := domain.Validate(broken)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidFlow))

	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Len(t, vErr.Problems, 4)
	assert.Contains(t, err.Error(), `duplicate node id "r1"`)
	assert.Contains(t, err.Error(), `start node "ghost" not found`)
	assert.Contains(t, err.Error(), `points to missing node "gone"`)
	assert.Contains(t, err.Error(), `unknown type "poll"`)
}

func TestUnreachable(t *testing.T) {
	flow := sampleFlow()
	flow.Nodes = append(flow.Nodes, domain.FlowNode{ID: "orphan", Type: domain.NodeTypeAnswer})
	assert.Equal(t, []string{"orphan"}, domain.Unreachable(flow))
}

func TestBuildPrompt_Order(t *testing.T) {
	req := domain.EscalationRequest{
		Question: "why?",
		Subject:  "Science",
		Topic:    "Physics Concepts",
		Subtopic: domain.DefaultSubtopic,
		Persona:  "Use real-world examples.",
		ConversationHistory: []domain.AITurn{
			{Role: domain.RoleUser, Content: "first"},
			{Role: domain.RoleAssistant, Content: "answer"},
		},
	}

	msgs := domain.BuildPrompt(req)
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "Subject: Science")
	assert.Contains(t, msgs[0].Content, "Topic: Physics Concepts")
	assert.Contains(t, msgs[0].Content, "Subtopic: AI Help")
	assert.Contains(t, msgs[0].Content, "Use real-world examples.")
	assert.Equal(t, "first", msgs[1].Content)
	assert.Equal(t, "assistant", msgs[2].Role)
	assert.Equal(t, domain.PromptMessage{Role: "user", Content: "why?"}, msgs[3])
}

func TestClassifyAIError(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{&domain.AIServiceError{Kind: domain.ErrRateLimited, Status: 429}, domain.ErrRateLimited},
		{fmt.Errorf("wrapped: %w", &domain.AIServiceError{Kind: domain.ErrQuotaExhausted}), domain.ErrQuotaExhausted},
		{domain.ErrMalformedResponse, domain.ErrMalformedResponse},
		{errors.New("connection reset"), domain.ErrAIUnavailable},
	}
	notices := make(map[string]bool)
	for _, tt := range tests {
		assert.Equal(t, tt.want, domain.ClassifyAIError(tt.err))
		notices[domain.AINotice(tt.err)] = true
	}
	assert.Len(t, notices, 4, "each failure kind maps to a distinct notice")
}

func TestAIServiceError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &domain.AIServiceError{Kind: domain.ErrAIUnavailable, Status: 500, Err: cause}
	assert.ErrorIs(t, err, domain.ErrAIUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "ai service error (status 500): boom", err.Error())
}
