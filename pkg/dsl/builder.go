package dsl

import (
	"fmt"

	"github.com/aretw0/doubtflow/pkg/adapters/memory"
	"github.com/aretw0/doubtflow/pkg/domain"
)

// Builder manages the flow construction.
type Builder struct {
	flow  domain.DoubtFlow
	order []string
	nodes map[string]*NodeBuilder
}

// New creates a new flow builder.
func New(id string) *Builder {
	return &Builder{
		flow:  domain.DoubtFlow{ID: id},
		nodes: make(map[string]*NodeBuilder),
	}
}

// Name sets the flow's display name, also used as the AI topic.
func (b *Builder) Name(name string) *Builder {
	b.flow.Name = name
	return b
}

// Subject sets the flow's subject.
func (b *Builder) Subject(subject string) *Builder {
	b.flow.Subject = subject
	return b
}

// Start sets the start node. The first added node is used otherwise.
func (b *Builder) Start(nodeID string) *Builder {
	b.flow.StartNodeID = nodeID
	return b
}

// Add creates a new node in the flow.
// If the node already exists, it returns the existing builder.
func (b *Builder) Add(id string) *NodeBuilder {
	if nb, ok := b.nodes[id]; ok {
		return nb
	}
	nb := &NodeBuilder{
		node:    domain.FlowNode{ID: id, Type: domain.NodeTypeAnswer},
		builder: b,
	}
	b.nodes[id] = nb
	b.order = append(b.order, id)
	return nb
}

// Build assembles the flow in insertion order and validates it.
func (b *Builder) Build() (domain.DoubtFlow, error) {
	flow := b.flow
	flow.Nodes = make([]domain.FlowNode, 0, len(b.order))
	for _, id := range b.order {
		flow.Nodes = append(flow.Nodes, b.nodes[id].node.Clone())
	}
	if flow.StartNodeID == "" && len(flow.Nodes) > 0 {
		flow.StartNodeID = flow.Nodes[0].ID
	}

	if err := domain.Validate(flow); err != nil {
		return domain.DoubtFlow{}, fmt.Errorf("failed to build flow %s: %w", flow.ID, err)
	}
	return flow, nil
}

// Loader builds the flow and wraps it in a memory loader.
func (b *Builder) Loader() (*memory.Loader, error) {
	flow, err := b.Build()
	if err != nil {
		return nil, err
	}
	return memory.NewLoader(flow), nil
}
