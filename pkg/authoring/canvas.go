package authoring

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/aretw0/doubtflow/internal/logging"
	"github.com/aretw0/doubtflow/pkg/domain"
)

// ErrNodeNotFound is returned by editor operations that need an existing node.
var ErrNodeNotFound = errors.New("editor node not found")

// Grid layout for new nodes.
const (
	gridColumns  = 4
	gridSpacingX = 250
	gridSpacingY = 150
)

// Position is the visual location of a node on the editing surface.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeData is the editable payload of an editor node.
type NodeData struct {
	Label      string              `json:"label"`
	Content    string              `json:"content"`
	Options    []domain.FlowOption `json:"options,omitempty"`
	NextNodeID string              `json:"nextNodeId,omitempty"`
	AIPrompt   string              `json:"aiPrompt,omitempty"`
}

// EditorNode is the editor-native shape of a node.
type EditorNode struct {
	ID       string          `json:"id"`
	Type     domain.NodeType `json:"type"`
	Position Position        `json:"position"`
	Data     NodeData        `json:"data"`
}

// Edge is a visual link between two editor nodes.
// OptionID is empty for node-level links.
type Edge struct {
	ID       string `json:"id"`
	Source   string `json:"source"`
	Target   string `json:"target"`
	OptionID string `json:"optionId,omitempty"`
}

// NodePatch carries the fields to merge into a node. Nil fields are left untouched.
type NodePatch struct {
	Label      *string              `json:"label,omitempty"`
	Content    *string              `json:"content,omitempty"`
	Options    *[]domain.FlowOption `json:"options,omitempty"`
	NextNodeID *string              `json:"nextNodeId,omitempty"`
	AIPrompt   *string              `json:"aiPrompt,omitempty"`
}

// Observer receives the canonical node list after every change.
type Observer func(nodes []domain.FlowNode)

// Canvas is the authoring working set. It is safe for concurrent use.
// Observer calls are serialized and arrive in mutation order.
type Canvas struct {
	mu       sync.Mutex
	nodes    []EditorNode
	edges    []Edge
	counter  int
	rev      uint64
	observer Observer
	logger   *slog.Logger

	// notifyMu is taken before mu is released so notifications cannot overtake each other.
	notifyMu sync.Mutex
}

// CanvasOption configures a Canvas.
type CanvasOption func(*Canvas)

// WithObserver registers the owner notified on every change.
func WithObserver(o Observer) CanvasOption {
	return func(c *Canvas) {
		c.observer = o
	}
}

// WithCanvasLogger sets the canvas logger.
func WithCanvasLogger(logger *slog.Logger) CanvasOption {
	return func(c *Canvas) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCanvas creates an empty canvas.
func NewCanvas(opts ...CanvasOption) *Canvas {
	c := &Canvas{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddNode appends a new node of type t and returns its id.
func (c *Canvas) AddNode(t domain.NodeType) (string, error) {
	if !t.Valid() {
		return "", fmt.Errorf("unknown node type %q", t)
	}

	c.mu.Lock()
	c.counter++
	id := "node-" + strconv.Itoa(c.counter)
	n := EditorNode{
		ID:       id,
		Type:     t,
		Position: gridPosition(len(c.nodes)),
		Data:     NodeData{Label: label(t)},
	}
	if t != domain.NodeTypeAI {
		n.Data.Options = []domain.FlowOption{}
	}
	c.nodes = append(c.nodes, n)
	c.logger.Debug("node added", "node_id", id, "type", t)
	c.publish()
	return id, nil
}

// UpdateNode merges patch into the node's data. Unknown ids are ignored.
func (c *Canvas) UpdateNode(id string, patch NodePatch) bool {
	c.mu.Lock()
	i := c.indexOf(id)
	if i < 0 {
		c.mu.Unlock()
		return false
	}

	d := &c.nodes[i].Data
	if patch.Label != nil {
		d.Label = *patch.Label
	}
	if patch.Content != nil {
		d.Content = *patch.Content
	}
	if patch.Options != nil {
		d.Options = domain.CloneOptions(*patch.Options)
		c.syncOptionEdges(id)
	}
	if patch.NextNodeID != nil {
		d.NextNodeID = *patch.NextNodeID
		c.syncNodeEdge(id, d.NextNodeID)
	}
	if patch.AIPrompt != nil {
		d.AIPrompt = *patch.AIPrompt
	}
	c.publish()
	return true
}

// DeleteNode removes the node and every edge touching it.
// Options on other nodes that pointed at it are left dangling.
func (c *Canvas) DeleteNode(id string) bool {
	c.mu.Lock()
	i := c.indexOf(id)
	if i < 0 {
		c.mu.Unlock()
		return false
	}
	c.nodes = append(c.nodes[:i], c.nodes[i+1:]...)

	kept := c.edges[:0]
	for _, e := range c.edges {
		if e.Source != id && e.Target != id {
			kept = append(kept, e)
		}
	}
	c.edges = kept
	c.publish()
	return true
}

// Connect links source to target. When optionID names one of the source's options that
// option is rewired, otherwise the node-level NextNodeID is set.
func (c *Canvas) Connect(source, optionID, target string) error {
	c.mu.Lock()
	si := c.indexOf(source)
	if si < 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNodeNotFound, source)
	}
	if c.indexOf(target) < 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNodeNotFound, target)
	}

	d := &c.nodes[si].Data
	wired := false
	if optionID != "" {
		for j := range d.Options {
			if d.Options[j].ID == optionID {
				d.Options[j].NextNodeID = target
				wired = true
				break
			}
		}
	}
	if !wired {
		optionID = ""
		d.NextNodeID = target
	}
	c.putEdge(Edge{Source: source, Target: target, OptionID: optionID})
	c.publish()
	return nil
}

// Load replaces the working set with existing canonical nodes.
// Ids are kept and the counter moves past any node-N id.
func (c *Canvas) Load(nodes []domain.FlowNode) {
	c.mu.Lock()
	c.nodes = make([]EditorNode, 0, len(nodes))
	c.edges = nil
	c.counter = 0
	for i, n := range nodes {
		c.nodes = append(c.nodes, EditorNode{
			ID:       n.ID,
			Type:     n.Type,
			Position: gridPosition(i),
			Data: NodeData{
				Label:      label(n.Type),
				Content:    n.Content,
				Options:    domain.CloneOptions(n.Options),
				NextNodeID: n.NextNodeID,
				AIPrompt:   n.AIPrompt,
			},
		})
		if num, ok := strings.CutPrefix(n.ID, "node-"); ok {
			if v, err := strconv.Atoi(num); err == nil && v > c.counter {
				c.counter = v
			}
		}
	}
	for _, n := range c.nodes {
		c.syncOptionEdges(n.ID)
		if n.Data.NextNodeID != "" {
			c.putEdge(Edge{Source: n.ID, Target: n.Data.NextNodeID})
		}
	}
	c.publish()
}

// Reset clears the working set. The observer receives an empty list.
func (c *Canvas) Reset() {
	c.mu.Lock()
	c.clear()
	c.publish()
}

// ResetIfUnchanged clears the working set only when no change happened since
// Snapshot returned rev. It reports whether the canvas was cleared.
func (c *Canvas) ResetIfUnchanged(rev uint64) bool {
	c.mu.Lock()
	if c.rev != rev {
		c.mu.Unlock()
		return false
	}
	c.clear()
	c.publish()
	return true
}

func (c *Canvas) clear() {
	c.nodes = nil
	c.edges = nil
	c.counter = 0
}

// Nodes returns a copy of the editor nodes.
func (c *Canvas) Nodes() []EditorNode {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]EditorNode, len(c.nodes))
	for i, n := range c.nodes {
		out[i] = n
		out[i].Data.Options = domain.CloneOptions(n.Data.Options)
	}
	return out
}

// Edges returns a copy of the editor edges.
func (c *Canvas) Edges() []Edge {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Edge, len(c.edges))
	copy(out, c.edges)
	return out
}

// Canonical converts the current working set.
func (c *Canvas) Canonical() []domain.FlowNode {
	nodes, _ := c.Snapshot()
	return nodes
}

// Snapshot converts the current working set and returns the revision it was taken at.
// Every mutation advances the revision.
func (c *Canvas) Snapshot() ([]domain.FlowNode, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConvertToCanonical(c.nodes), c.rev
}

// ConvertToCanonical maps editor nodes to flow nodes, dropping position and label.
func ConvertToCanonical(nodes []EditorNode) []domain.FlowNode {
	out := make([]domain.FlowNode, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, domain.FlowNode{
			ID:         n.ID,
			Type:       n.Type,
			Content:    n.Data.Content,
			Options:    domain.CloneOptions(n.Data.Options),
			NextNodeID: n.Data.NextNodeID,
			AIPrompt:   n.Data.AIPrompt,
		})
	}
	return out
}

// publish advances the revision and notifies the observer. Caller holds mu; publish releases it.
func (c *Canvas) publish() {
	c.rev++
	canonical := ConvertToCanonical(c.nodes)

	c.notifyMu.Lock()
	c.mu.Unlock()
	defer c.notifyMu.Unlock()

	if c.observer != nil {
		c.observer(canonical)
	}
}

func (c *Canvas) indexOf(id string) int {
	for i, n := range c.nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// syncOptionEdges rebuilds the option edges leaving id. Caller holds mu.
func (c *Canvas) syncOptionEdges(id string) {
	kept := c.edges[:0]
	for _, e := range c.edges {
		if e.Source != id || e.OptionID == "" {
			kept = append(kept, e)
		}
	}
	c.edges = kept

	i := c.indexOf(id)
	for _, opt := range c.nodes[i].Data.Options {
		if opt.NextNodeID != "" {
			c.putEdge(Edge{Source: id, Target: opt.NextNodeID, OptionID: opt.ID})
		}
	}
}

// syncNodeEdge replaces the node-level edge leaving id. Caller holds mu.
func (c *Canvas) syncNodeEdge(id, target string) {
	kept := c.edges[:0]
	for _, e := range c.edges {
		if e.Source != id || e.OptionID != "" {
			kept = append(kept, e)
		}
	}
	c.edges = kept
	if target != "" {
		c.putEdge(Edge{Source: id, Target: target})
	}
}

// putEdge adds e, replacing an edge from the same source handle. Caller holds mu.
func (c *Canvas) putEdge(e Edge) {
	e.ID = "e-" + e.Source + "-" + e.Target
	if e.OptionID != "" {
		e.ID += "-" + e.OptionID
	}
	for i, existing := range c.edges {
		if existing.Source == e.Source && existing.OptionID == e.OptionID {
			c.edges[i] = e
			return
		}
	}
	c.edges = append(c.edges, e)
}

func gridPosition(i int) Position {
	return Position{
		X: float64((i % gridColumns) * gridSpacingX),
		Y: float64((i / gridColumns) * gridSpacingY),
	}
}

func label(t domain.NodeType) string {
	s := string(t)
	if t == domain.NodeTypeAI {
		return "AI Node"
	}
	return strings.ToUpper(s[:1]) + s[1:] + " Node"
}
