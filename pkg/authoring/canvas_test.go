package authoring_test

import (
	"sync"
	"testing"
	"time"

	"github.com/aretw0/doubtflow/pkg/authoring"
	"github.com/aretw0/doubtflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestCanvas_AddNode(t *testing.T) {
	var notified [][]domain.FlowNode
	c := authoring.NewCanvas(authoring.WithObserver(func(nodes []domain.FlowNode) {
		notified = append(notified, nodes)
	}))

	q, err := c.AddNode(domain.NodeTypeQuestion)
	require.NoError(t, err)
	a, err := c.AddNode(domain.NodeTypeAnswer)
	require.NoError(t, err)
	ai, err := c.AddNode(domain.NodeTypeAI)
	require.NoError(t, err)

	assert.Equal(t, []string{"node-1", "node-2", "node-3"}, []string{q, a, ai})
	require.Len(t, notified, 3, "every add notifies")
	assert.Len(t, notified[0], 1)
	assert.Len(t, notified[2], 3)

	nodes := c.Nodes()
	assert.Equal(t, "Question Node", nodes[0].Data.Label)
	assert.Equal(t, "AI Node", nodes[2].Data.Label)
	assert.NotNil(t, nodes[0].Data.Options, "non-AI nodes start with an empty option list")
	assert.Nil(t, nodes[2].Data.Options)
	assert.Empty(t, nodes[0].Data.Content)
	assert.NotEqual(t, nodes[0].Position, nodes[1].Position)

	_, err = c.AddNode("quiz")
	assert.Error(t, err)
	assert.Len(t, notified, 3)
}

func TestCanvas_UpdateNode(t *testing.T) {
	var last []domain.FlowNode
	calls := 0
	c := authoring.NewCanvas(authoring.WithObserver(func(nodes []domain.FlowNode) {
		calls++
		last = nodes
	}))

	id, _ := c.AddNode(domain.NodeTypeQuestion)
	ok := c.UpdateNode(id, authoring.NodePatch{
		Content: ptr("What is 2+2?"),
		Options: ptr([]domain.FlowOption{{ID: "o1", Label: "Four"}}),
	})
	require.True(t, ok)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "What is 2+2?", last[0].Content)
	assert.Equal(t, []domain.FlowOption{{ID: "o1", Label: "Four"}}, last[0].Options)

	// Partial patch keeps previous fields
	c.UpdateNode(id, authoring.NodePatch{AIPrompt: ptr("unused")})
	assert.Equal(t, "What is 2+2?", last[0].Content)
	assert.Equal(t, "unused", last[0].AIPrompt)

	assert.False(t, c.UpdateNode("ghost", authoring.NodePatch{Content: ptr("x")}))
	assert.Equal(t, 3, calls, "unknown id does not notify")
}

func TestCanvas_ConvertToCanonical(t *testing.T) {
	editor := []authoring.EditorNode{
		{
			ID:       "node-1",
			Type:     domain.NodeTypeQuestion,
			Position: authoring.Position{X: 10, Y: 20},
			Data: authoring.NodeData{
				Label:      "Question Node",
				Content:    "Pick",
				Options:    []domain.FlowOption{{ID: "a", Label: "A", NextNodeID: "node-2"}},
				NextNodeID: "node-2",
			},
		},
		{
			ID:   "node-2",
			Type: domain.NodeTypeAI,
			Data: authoring.NodeData{Content: "Ask", AIPrompt: "Be brief."},
		},
	}

	first := authoring.ConvertToCanonical(editor)
	second := authoring.ConvertToCanonical(editor)
	assert.Equal(t, first, second, "conversion is idempotent")

	assert.Equal(t, []domain.FlowNode{
		{
			ID:         "node-1",
			Type:       domain.NodeTypeQuestion,
			Content:    "Pick",
			Options:    []domain.FlowOption{{ID: "a", Label: "A", NextNodeID: "node-2"}},
			NextNodeID: "node-2",
		},
		{ID: "node-2", Type: domain.NodeTypeAI, Content: "Ask", AIPrompt: "Be brief."},
	}, first)

	first[0].Options[0].Label = "mutated"
	assert.Equal(t, "A", editor[0].Data.Options[0].Label, "output shares no slices with input")
}

func TestCanvas_ConnectAndDelete(t *testing.T) {
	var last []domain.FlowNode
	c := authoring.NewCanvas(authoring.WithObserver(func(nodes []domain.FlowNode) { last = nodes }))

	q, _ := c.AddNode(domain.NodeTypeQuestion)
	r, _ := c.AddNode(domain.NodeTypeAnswer)
	c.UpdateNode(q, authoring.NodePatch{Options: ptr([]domain.FlowOption{{ID: "a", Label: "A"}})})

	require.NoError(t, c.Connect(q, "a", r))
	assert.Equal(t, r, last[0].Options[0].NextNodeID)
	assert.Empty(t, last[0].NextNodeID)

	require.NoError(t, c.Connect(r, "", q))
	assert.Equal(t, q, last[1].NextNodeID)

	edges := c.Edges()
	require.Len(t, edges, 2)
	assert.Equal(t, authoring.Edge{ID: "e-node-1-node-2-a", Source: q, Target: r, OptionID: "a"}, edges[0])

	// Reconnecting the same handle replaces the edge
	s, _ := c.AddNode(domain.NodeTypeAI)
	require.NoError(t, c.Connect(q, "a", s))
	assert.Len(t, c.Edges(), 2)
	assert.Equal(t, s, last[0].Options[0].NextNodeID)

	assert.ErrorIs(t, c.Connect(q, "a", "ghost"), authoring.ErrNodeNotFound)
	assert.ErrorIs(t, c.Connect("ghost", "", q), authoring.ErrNodeNotFound)

	require.True(t, c.DeleteNode(s))
	assert.Len(t, last, 2)
	for _, e := range c.Edges() {
		assert.NotEqual(t, s, e.Target)
	}
	assert.False(t, c.DeleteNode(s))

	// Counter never reuses ids
	next, _ := c.AddNode(domain.NodeTypeAnswer)
	assert.Equal(t, "node-4", next)
}

func TestCanvas_Load(t *testing.T) {
	c := authoring.NewCanvas()
	c.Load([]domain.FlowNode{
		{ID: "node-7", Type: domain.NodeTypeQuestion, Content: "Q", Options: []domain.FlowOption{{ID: "x", Label: "X", NextNodeID: "start"}}},
		{ID: "start", Type: domain.NodeTypeAnswer, Content: "R"},
	})

	assert.Len(t, c.Canonical(), 2)
	assert.Equal(t, []authoring.Edge{{ID: "e-node-7-start-x", Source: "node-7", Target: "start", OptionID: "x"}}, c.Edges())

	id, err := c.AddNode(domain.NodeTypeAnswer)
	require.NoError(t, err)
	assert.Equal(t, "node-8", id)
}

func TestCanvas_UpdateNextNodeMovesEdge(t *testing.T) {
	c := authoring.NewCanvas()
	a, _ := c.AddNode(domain.NodeTypeAnswer)
	b, _ := c.AddNode(domain.NodeTypeAnswer)
	d, _ := c.AddNode(domain.NodeTypeAnswer)
	require.NoError(t, c.Connect(a, "", b))

	require.True(t, c.UpdateNode(a, authoring.NodePatch{NextNodeID: ptr(d)}))
	assert.Equal(t, d, c.Canonical()[0].NextNodeID)
	assert.Equal(t, []authoring.Edge{{ID: "e-node-1-node-3", Source: a, Target: d}}, c.Edges())

	// Clearing the link removes the edge
	require.True(t, c.UpdateNode(a, authoring.NodePatch{NextNodeID: ptr("")}))
	assert.Empty(t, c.Canonical()[0].NextNodeID)
	assert.Empty(t, c.Edges())
}

func TestCanvas_NotificationsKeepOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
		last  []domain.FlowNode
	)
	c := authoring.NewCanvas(authoring.WithObserver(func(nodes []domain.FlowNode) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			time.Sleep(50 * time.Millisecond)
		}
		mu.Lock()
		last = nodes
		mu.Unlock()
	}))

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.AddNode(domain.NodeTypeAnswer)
		}()
	}
	wg.Wait()

	require.Len(t, c.Canonical(), 2)
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, last, 2, "observer ends with the latest list")
}

func TestCanvas_ResetIfUnchanged(t *testing.T) {
	var last []domain.FlowNode
	c := authoring.NewCanvas(authoring.WithObserver(func(nodes []domain.FlowNode) { last = nodes }))
	c.AddNode(domain.NodeTypeQuestion)

	_, rev := c.Snapshot()
	c.AddNode(domain.NodeTypeAnswer)
	assert.False(t, c.ResetIfUnchanged(rev), "a later edit keeps the working set")
	assert.Len(t, c.Canonical(), 2)

	_, rev = c.Snapshot()
	assert.True(t, c.ResetIfUnchanged(rev))
	assert.Empty(t, c.Canonical())
	assert.Empty(t, last, "reset notifies an empty list")
}
