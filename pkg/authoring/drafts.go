package authoring

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/doubtflow/pkg/domain"
	"github.com/aretw0/doubtflow/pkg/ports"
	"github.com/google/uuid"
)

// Drafts keeps the builders of authors working through a remote surface.
type Drafts struct {
	store ports.FlowStore
	opts  []BuilderOption

	mu       sync.RWMutex
	builders map[string]*Builder
}

// NewDrafts creates a draft registry whose builders commit to store.
func NewDrafts(store ports.FlowStore, opts ...BuilderOption) *Drafts {
	return &Drafts{
		store:    store,
		opts:     opts,
		builders: make(map[string]*Builder),
	}
}

// Create starts a draft. A non-empty flowID loads that flow for editing.
func (d *Drafts) Create(ctx context.Context, name, subject, flowID string) (string, *Builder, error) {
	b := NewBuilder(d.store, d.opts...)
	if flowID != "" {
		if err := b.Edit(ctx, flowID); err != nil {
			return "", nil, err
		}
	}
	if name != "" {
		b.SetName(name)
	}
	if subject != "" {
		b.SetSubject(subject)
	}

	id := "draft-" + uuid.NewString()
	d.mu.Lock()
	d.builders[id] = b
	d.mu.Unlock()
	return id, b, nil
}

// Get returns the builder of a draft.
func (d *Drafts) Get(id string) (*Builder, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.builders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrDraftNotFound, id)
	}
	return b, nil
}

// Delete discards a draft.
func (d *Drafts) Delete(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.builders, id)
}
