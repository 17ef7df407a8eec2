package memory

import (
	"context"
	"sync"

	"github.com/aretw0/doubtflow/pkg/domain"
)

// Store implements ports.FlowStore in memory.
// Safe for concurrent use; every mutation is serialized so callers observe one linear history.
type Store struct {
	flows []domain.DoubtFlow
	mu    sync.RWMutex
}

// NewStore creates a new in-memory store holding copies of the initial flows.
func NewStore(initial ...domain.DoubtFlow) *Store {
	s := &Store{flows: make([]domain.DoubtFlow, 0, len(initial))}
	for _, f := range initial {
		s.flows = append(s.flows, f.Clone())
	}
	return s
}

// Add appends the flow.
func (s *Store) Add(ctx context.Context, flow domain.DoubtFlow) error {
	// Deep copy to ensure isolation, similar to serialization
	copied := flow.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows = append(s.flows, copied)
	return nil
}

// Update replaces every flow whose id matches, in place.
func (s *Store) Update(ctx context.Context, id string, flow domain.DoubtFlow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.flows {
		if s.flows[i].ID == id {
			s.flows[i] = flow.Clone()
		}
	}
	return nil
}

// Delete removes every flow whose id matches.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.flows[:0]
	for _, f := range s.flows {
		if f.ID != id {
			kept = append(kept, f)
		}
	}
	clear(s.flows[len(kept):])
	s.flows = kept
	return nil
}

// BySubject returns the flows of one subject.
func (s *Store) BySubject(ctx context.Context, subject string) ([]domain.DoubtFlow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.DoubtFlow{}
	for _, f := range s.flows {
		if f.Subject == subject {
			out = append(out, f.Clone())
		}
	}
	return out, nil
}

// Get retrieves the first flow with the given id.
func (s *Store) Get(ctx context.Context, id string) (domain.DoubtFlow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, f := range s.flows {
		if f.ID == id {
			// Copy on read so the caller can't mutate the collection
			return f.Clone(), nil
		}
	}
	return domain.DoubtFlow{}, domain.ErrFlowNotFound
}

// List returns all flows.
func (s *Store) List(ctx context.Context) ([]domain.DoubtFlow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.DoubtFlow, len(s.flows))
	for i, f := range s.flows {
		out[i] = f.Clone()
	}
	return out, nil
}

// Subjects returns distinct subjects.
func (s *Store) Subjects(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	out := []string{}
	for _, f := range s.flows {
		if !seen[f.Subject] {
			seen[f.Subject] = true
			out = append(out, f.Subject)
		}
	}
	return out, nil
}
