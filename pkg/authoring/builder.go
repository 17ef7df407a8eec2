package authoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/aretw0/doubtflow/internal/logging"
	"github.com/aretw0/doubtflow/pkg/domain"
	"github.com/aretw0/doubtflow/pkg/ports"
	"github.com/google/uuid"
)

// Builder is the owner of a Canvas: it tracks the draft's metadata and commits it to a store.
type Builder struct {
	store  ports.FlowStore
	canvas *Canvas
	logger *slog.Logger
	strict bool
	newID  func() string

	saveMu sync.Mutex

	mu        sync.Mutex
	name      string
	subject   string
	editingID string
	rev       uint64 // advanced by every form change
	nodes     []domain.FlowNode
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithStrictReferences rejects drafts with dangling references or duplicate ids on save.
func WithStrictReferences() BuilderOption {
	return func(b *Builder) {
		b.strict = true
	}
}

// WithLogger sets the builder logger.
func WithLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithFlowIDGenerator overrides the id source for new flows.
func WithFlowIDGenerator(fn func() string) BuilderOption {
	return func(b *Builder) {
		if fn != nil {
			b.newID = fn
		}
	}
}

// NewBuilder creates a Builder committing to store.
func NewBuilder(store ports.FlowStore, opts ...BuilderOption) *Builder {
	b := &Builder{
		store:  store,
		logger: logging.NewNop(),
		newID: func() string {
			return "flow-" + uuid.NewString()
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.canvas = NewCanvas(WithObserver(b.track), WithCanvasLogger(b.logger))
	return b
}

// Canvas returns the editing surface.
func (b *Builder) Canvas() *Canvas {
	return b.canvas
}

// SetName sets the flow name.
func (b *Builder) SetName(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.name = name
	b.rev++
}

// SetSubject sets the flow subject.
func (b *Builder) SetSubject(subject string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subject = subject
	b.rev++
}

// EditingID returns the id of the flow being edited, or "" for a new flow.
func (b *Builder) EditingID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.editingID
}

// Nodes returns the latest canonical node list reported by the canvas.
func (b *Builder) Nodes() []domain.FlowNode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cloneNodes(b.nodes)
}

// Draft assembles the flow as it would be saved, without validating it.
func (b *Builder) Draft() domain.DoubtFlow {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.draft(b.nodes)
}

// Edit loads an existing flow into the builder.
// The start node is moved to the front so saving keeps it as the start.
func (b *Builder) Edit(ctx context.Context, flowID string) error {
	flow, err := b.store.Get(ctx, flowID)
	if err != nil {
		return fmt.Errorf("failed to load flow for editing: %w", err)
	}

	nodes := flow.Nodes
	for i, n := range nodes {
		if n.ID == flow.StartNodeID && i > 0 {
			reordered := make([]domain.FlowNode, 0, len(nodes))
			reordered = append(reordered, n)
			reordered = append(reordered, nodes[:i]...)
			reordered = append(reordered, nodes[i+1:]...)
			nodes = reordered
			break
		}
	}

	b.mu.Lock()
	b.name = flow.Name
	b.subject = flow.Subject
	b.editingID = flow.ID
	b.rev++
	b.mu.Unlock()

	b.canvas.Load(nodes)
	b.logger.Info("editing flow", "flow_id", flow.ID, "nodes", len(nodes))
	return nil
}

// Save validates the draft and commits it. On success the builder is reset,
// unless the draft changed while it was being committed. In that case the working
// set is kept and the builder goes on editing the saved flow.
func (b *Builder) Save(ctx context.Context) (domain.DoubtFlow, error) {
	b.saveMu.Lock()
	defer b.saveMu.Unlock()

	nodes, canvasRev := b.canvas.Snapshot()
	b.mu.Lock()
	flow := b.draft(nodes)
	editing := b.editingID
	formRev := b.rev
	b.mu.Unlock()

	if err := b.validate(flow); err != nil {
		b.logger.Warn("draft rejected", "error", err)
		return domain.DoubtFlow{}, err
	}

	if editing != "" {
		flow.ID = editing
		if err := b.store.Update(ctx, editing, flow); err != nil {
			return domain.DoubtFlow{}, fmt.Errorf("failed to update flow: %w", err)
		}
	} else {
		flow.ID = b.newID()
		if err := b.store.Add(ctx, flow); err != nil {
			return domain.DoubtFlow{}, fmt.Errorf("failed to add flow: %w", err)
		}
	}

	b.logger.Info("flow saved", "flow_id", flow.ID, "nodes", len(flow.Nodes), "updated", editing != "")
	b.finishSave(flow.ID, formRev, canvasRev)
	return flow, nil
}

// finishSave clears what was committed. Edits made after the snapshot survive.
func (b *Builder) finishSave(flowID string, formRev, canvasRev uint64) {
	cleared := b.canvas.ResetIfUnchanged(canvasRev)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rev != formRev {
		b.logger.Warn("form changed during save, keeping it", "flow_id", flowID)
		return
	}
	if !cleared {
		b.logger.Warn("canvas changed during save, keeping working set", "flow_id", flowID)
		b.editingID = flowID
		b.rev++
		return
	}
	b.clearForm()
}

// Reset clears the form and the canvas.
func (b *Builder) Reset() {
	b.canvas.Reset()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearForm()
}

// clearForm resets the flow metadata. Caller holds mu.
func (b *Builder) clearForm() {
	b.name = ""
	b.subject = ""
	b.editingID = ""
	b.rev++
}

func (b *Builder) validate(flow domain.DoubtFlow) error {
	var problems []string
	if strings.TrimSpace(flow.Name) == "" {
		problems = append(problems, "flow name is required")
	}
	if strings.TrimSpace(flow.Subject) == "" {
		problems = append(problems, "subject is required")
	}
	if len(flow.Nodes) == 0 {
		problems = append(problems, "at least one node is required")
	}

	if b.strict && len(flow.Nodes) > 0 {
		var verr *domain.ValidationError
		if err := domain.Validate(flow); errors.As(err, &verr) {
			problems = append(problems, verr.Problems...)
		}
	}

	if len(problems) > 0 {
		return &domain.ValidationError{Problems: problems}
	}
	return nil
}

// track is the canvas observer.
func (b *Builder) track(nodes []domain.FlowNode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodes = nodes
}

// draft assembles the flow around nodes. Caller holds mu.
func (b *Builder) draft(nodes []domain.FlowNode) domain.DoubtFlow {
	flow := domain.DoubtFlow{
		ID:      b.editingID,
		Name:    strings.TrimSpace(b.name),
		Subject: strings.TrimSpace(b.subject),
		Nodes:   cloneNodes(nodes),
	}
	if len(flow.Nodes) > 0 {
		flow.StartNodeID = flow.Nodes[0].ID
	}
	return flow
}

func cloneNodes(nodes []domain.FlowNode) []domain.FlowNode {
	if nodes == nil {
		return nil
	}
	out := make([]domain.FlowNode, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}
