package dsl

import (
	"fmt"

	"github.com/aretw0/doubtflow/pkg/domain"
)

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	node    domain.FlowNode
	builder *Builder
}

// Question marks the node as a question and sets its content.
func (n *NodeBuilder) Question(content string) *NodeBuilder {
	n.node.Type = domain.NodeTypeQuestion
	n.node.Content = content
	return n
}

// Answer marks the node as an answer and sets its content.
func (n *NodeBuilder) Answer(content string) *NodeBuilder {
	n.node.Type = domain.NodeTypeAnswer
	n.node.Content = content
	return n
}

// AI marks the node as an AI step. AI steps take free text; options on them
// are never offered.
func (n *NodeBuilder) AI(content string) *NodeBuilder {
	n.node.Type = domain.NodeTypeAI
	n.node.Content = content
	return n
}

// Prompt sets the persona forwarded with AI requests from this node.
func (n *NodeBuilder) Prompt(prompt string) *NodeBuilder {
	n.node.AIPrompt = prompt
	return n
}

// Option adds an option with a generated id (opt1, opt2, ...).
func (n *NodeBuilder) Option(label, target string) *NodeBuilder {
	return n.OptionID(fmt.Sprintf("opt%d", len(n.node.Options)+1), label, target)
}

// OptionID adds an option with an explicit id.
func (n *NodeBuilder) OptionID(id, label, target string) *NodeBuilder {
	n.node.Options = append(n.node.Options, domain.FlowOption{
		ID:         id,
		Label:      label,
		NextNodeID: target,
	})
	return n
}

// Next sets the node's NextNodeID. It is kept for authoring round trips and
// not followed during traversal.
func (n *NodeBuilder) Next(target string) *NodeBuilder {
	n.node.NextNodeID = target
	return n
}

// Add is a shortcut to start the next node.
func (n *NodeBuilder) Add(id string) *NodeBuilder {
	return n.builder.Add(id)
}
