package domain

// DoubtFlow is an authored, named conversation script for one subject.
// It owns its nodes; StartNodeID must name one of them.
type DoubtFlow struct {
	ID          string     `json:"id" yaml:"id" mapstructure:"id"`
	Name        string     `json:"name" yaml:"name" mapstructure:"name"`
	Subject     string     `json:"subject" yaml:"subject" mapstructure:"subject"`
	StartNodeID string     `json:"startNodeId" yaml:"startNodeId" mapstructure:"startNodeId"`
	Nodes       []FlowNode `json:"nodes" yaml:"nodes" mapstructure:"nodes"`
}

// Clone returns a deep copy of the flow.
func (f DoubtFlow) Clone() DoubtFlow {
	c := f
	if f.Nodes != nil {
		c.Nodes = make([]FlowNode, len(f.Nodes))
		for i, n := range f.Nodes {
			c.Nodes[i] = n.Clone()
		}
	}
	return c
}

// Graph is an id-indexed view over a flow's nodes.
// All inter-node references are resolved through it at traversal time.
type Graph struct {
	flow  DoubtFlow
	index map[string]int
}

// NewGraph indexes a private copy of flow. When ids collide the first node wins.
func NewGraph(flow DoubtFlow) *Graph {
	g := &Graph{
		flow:  flow.Clone(),
		index: make(map[string]int, len(flow.Nodes)),
	}
	for i, n := range g.flow.Nodes {
		if _, dup := g.index[n.ID]; !dup {
			g.index[n.ID] = i
		}
	}
	return g
}

// Flow returns a copy of the indexed flow.
func (g *Graph) Flow() DoubtFlow {
	return g.flow.Clone()
}

// FlowID returns the id of the indexed flow.
func (g *Graph) FlowID() string {
	return g.flow.ID
}

// Name returns the flow name.
func (g *Graph) Name() string {
	return g.flow.Name
}

// Subject returns the flow subject.
func (g *Graph) Subject() string {
	return g.flow.Subject
}

// StartNodeID returns the configured entry node id.
func (g *Graph) StartNodeID() string {
	return g.flow.StartNodeID
}

// Node resolves an id to a copy of its node.
func (g *Graph) Node(id string) (FlowNode, bool) {
	i, ok := g.index[id]
	if !ok {
		return FlowNode{}, false
	}
	return g.flow.Nodes[i].Clone(), true
}

// Has reports whether id names a node of the flow.
func (g *Graph) Has(id string) bool {
	_, ok := g.index[id]
	return ok
}

// Start resolves the entry node.
func (g *Graph) Start() (FlowNode, error) {
	n, ok := g.Node(g.flow.StartNodeID)
	if !ok {
		return FlowNode{}, &GraphReferenceError{
			FlowID:   g.flow.ID,
			TargetID: g.flow.StartNodeID,
		}
	}
	return n, nil
}
