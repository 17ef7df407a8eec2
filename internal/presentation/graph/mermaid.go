package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/doubtflow/pkg/domain"
)

// GraphOverlay contains session state to visualize on the graph.
type GraphOverlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// GenerateMermaid produces a Mermaid flowchart for a flow.
// Shapes follow the node role:
// - Start: ((Circle))
// - AI: {{Hexagon}}
// - Question: [/Parallelogram/]
// - Answer: [Rectangle]
// Option edges carry the option label. A bare NextNodeID is drawn dotted.
// Targets missing from the flow are drawn with the "missing" class.
func GenerateMermaid(flow domain.DoubtFlow, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	g := domain.NewGraph(flow)
	start := flow.StartNodeID
	if start == "" && len(flow.Nodes) > 0 {
		start = flow.Nodes[0].ID
	}

	missing := make(map[string]bool)
	for _, node := range flow.Nodes {
		safeID := sanitizeMermaidID(node.ID)

		opener, closer := "[", "]"
		switch {
		case node.ID == start:
			opener, closer = "((", "))"
		case node.Type == domain.NodeTypeAI:
			opener, closer = "{{", "}}"
		case node.Type == domain.NodeTypeQuestion:
			opener, closer = "[/", "/]"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, escapeLabel(node.ID), closer)

		for _, opt := range node.Options {
			if !g.Has(opt.NextNodeID) {
				missing[opt.NextNodeID] = true
			}
			fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", safeID, escapeLabel(opt.Label), sanitizeMermaidID(opt.NextNodeID))
		}
		if node.NextNodeID != "" {
			if !g.Has(node.NextNodeID) {
				missing[node.NextNodeID] = true
			}
			fmt.Fprintf(&sb, "    %s -.-> %s\n", safeID, sanitizeMermaidID(node.NextNodeID))
		}
	}

	if len(missing) > 0 {
		sb.WriteString("\n    %% Dangling References\n")
		sb.WriteString("    classDef missing fill:#ffebee,stroke:#c62828,stroke-dasharray:5 5,color:#000;\n")
		// Iterate nodes again so output order is stable.
		written := make(map[string]bool)
		for _, node := range flow.Nodes {
			targets := make([]string, 0, len(node.Options)+1)
			for _, opt := range node.Options {
				targets = append(targets, opt.NextNodeID)
			}
			targets = append(targets, node.NextNodeID)
			for _, id := range targets {
				if !missing[id] || written[id] {
					continue
				}
				written[id] = true
				fmt.Fprintf(&sb, "    class %s missing;\n", sanitizeMermaidID(id))
			}
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if !visitedSet[safeID] && safeID != "" {
				visitedSet[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}

		if overlay.CurrentNode != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode))
		}
	}

	return sb.String()
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
