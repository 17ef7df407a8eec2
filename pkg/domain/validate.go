package domain

import "fmt"

// Validate checks a flow's structural references.
// Traversal tolerates everything reported here; callers decide whether to enforce it.
func Validate(flow DoubtFlow) error {
	var problems []string

	seen := make(map[string]bool, len(flow.Nodes))
	for i, n := range flow.Nodes {
		if n.ID == "" {
			problems = append(problems, fmt.Sprintf("node #%d has no id", i+1))
			continue
		}
		if seen[n.ID] {
			problems = append(problems, fmt.Sprintf("duplicate node id %q", n.ID))
		}
		seen[n.ID] = true
		if !n.Type.Valid() {
			problems = append(problems, fmt.Sprintf("node %q has unknown type %q", n.ID, n.Type))
		}
	}

	if flow.StartNodeID == "" {
		problems = append(problems, "start node is not set")
	} else if !seen[flow.StartNodeID] {
		problems = append(problems, fmt.Sprintf("start node %q not found", flow.StartNodeID))
	}

	for _, n := range flow.Nodes {
		for _, opt := range n.Options {
			if opt.NextNodeID == "" {
				problems = append(problems, fmt.Sprintf("option %q on node %q has no target", opt.ID, n.ID))
				continue
			}
			if !seen[opt.NextNodeID] {
				problems = append(problems, (&GraphReferenceError{
					FlowID:     flow.ID,
					FromNodeID: n.ID,
					OptionID:   opt.ID,
					TargetID:   opt.NextNodeID,
				}).Error())
			}
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Unreachable returns the ids of nodes no option path from the start node reaches, in flow order.
func Unreachable(flow DoubtFlow) []string {
	g := NewGraph(flow)
	visited := make(map[string]bool)
	queue := []string{flow.StartNodeID}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		n, ok := g.Node(id)
		if !ok {
			continue
		}
		visited[id] = true
		for _, opt := range n.Options {
			if !visited[opt.NextNodeID] {
				queue = append(queue, opt.NextNodeID)
			}
		}
	}

	var out []string
	for _, n := range flow.Nodes {
		if !visited[n.ID] {
			out = append(out, n.ID)
		}
	}
	return out
}
