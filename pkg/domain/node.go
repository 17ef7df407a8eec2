package domain

// NodeType controls which transition rule applies while a session sits on a node.
type NodeType string

const (
	// NodeTypeQuestion presents content and a set of options to pick from.
	NodeTypeQuestion NodeType = "question"
	// NodeTypeAnswer presents an explanation, usually followed by navigation options.
	NodeTypeAnswer NodeType = "answer"
	// NodeTypeAI accepts free text and escalates it to the completion service.
	NodeTypeAI NodeType = "ai"
)

// Valid reports whether t is one of the known node types.
func (t NodeType) Valid() bool {
	switch t {
	case NodeTypeQuestion, NodeTypeAnswer, NodeTypeAI:
		return true
	}
	return false
}

// FlowOption is a learner-selectable branch.
// NextNodeID is a reference resolved through the flow's Graph, never a pointer.
type FlowOption struct {
	ID         string `json:"id" yaml:"id" mapstructure:"id"`
	Label      string `json:"label" yaml:"label" mapstructure:"label"`
	NextNodeID string `json:"nextNodeId" yaml:"nextNodeId" mapstructure:"nextNodeId"`
}

// FlowNode is a single step in a flow.
type FlowNode struct {
	ID      string   `json:"id" yaml:"id" mapstructure:"id"`
	Type    NodeType `json:"type" yaml:"type" mapstructure:"type"`
	Content string   `json:"content" yaml:"content" mapstructure:"content"`

	// Options is nil for AI nodes; they synthesize their own after each exchange.
	Options []FlowOption `json:"options,omitempty" yaml:"options,omitempty" mapstructure:"options"`

	// NextNodeID is an editor-level link kept through authoring. Traversal ignores it.
	NextNodeID string `json:"nextNodeId,omitempty" yaml:"nextNodeId,omitempty" mapstructure:"nextNodeId"`

	// AIPrompt extends the tutoring persona for AI nodes.
	AIPrompt string `json:"aiPrompt,omitempty" yaml:"aiPrompt,omitempty" mapstructure:"aiPrompt"`
}

// Option returns the option with the given id.
func (n FlowNode) Option(id string) (FlowOption, bool) {
	for _, opt := range n.Options {
		if opt.ID == id {
			return opt, true
		}
	}
	return FlowOption{}, false
}

// Clone returns a copy that shares no slices with n.
func (n FlowNode) Clone() FlowNode {
	c := n
	c.Options = CloneOptions(n.Options)
	return c
}

// CloneOptions copies an option list, preserving nil.
func CloneOptions(opts []FlowOption) []FlowOption {
	if opts == nil {
		return nil
	}
	out := make([]FlowOption, len(opts))
	copy(out, opts)
	return out
}
