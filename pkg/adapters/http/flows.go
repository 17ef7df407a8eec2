package http

import (
	"net/http"

	"github.com/aretw0/doubtflow/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ListFlows handles GET /flows, optionally filtered by ?subject=.
func (s *Server) ListFlows(w http.ResponseWriter, r *http.Request) {
	var (
		flows []domain.DoubtFlow
		err   error
	)
	if subject := r.URL.Query().Get("subject"); subject != "" {
		flows, err = s.Flows.BySubject(r.Context(), subject)
	} else {
		flows, err = s.Flows.List(r.Context())
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if flows == nil {
		flows = []domain.DoubtFlow{}
	}
	writeJSON(w, http.StatusOK, flows)
}

// ListSubjects handles GET /subjects.
func (s *Server) ListSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := s.Flows.Subjects(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if subjects == nil {
		subjects = []string{}
	}
	writeJSON(w, http.StatusOK, subjects)
}

// GetFlow handles GET /flows/{flowID}.
func (s *Server) GetFlow(w http.ResponseWriter, r *http.Request) {
	flow, err := s.Flows.Get(r.Context(), chi.URLParam(r, "flowID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flow)
}

// CreateFlow handles POST /flows. Imported flows are fully validated.
func (s *Server) CreateFlow(w http.ResponseWriter, r *http.Request) {
	var flow domain.DoubtFlow
	if err := decode(r, &flow); err != nil {
		s.writeError(w, r, err)
		return
	}
	if flow.ID == "" {
		flow.ID = "flow-" + uuid.NewString()
	}
	if err := prepareImport(&flow); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Flows.Add(r.Context(), flow); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("flow added", "flow_id", flow.ID, "subject", flow.Subject)
	writeJSON(w, http.StatusCreated, flow)
}

// ReplaceFlow handles PUT /flows/{flowID}.
func (s *Server) ReplaceFlow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "flowID")
	if _, err := s.Flows.Get(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}

	var flow domain.DoubtFlow
	if err := decode(r, &flow); err != nil {
		s.writeError(w, r, err)
		return
	}
	flow.ID = id
	if err := prepareImport(&flow); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Flows.Update(r.Context(), id, flow); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("flow replaced", "flow_id", id)
	writeJSON(w, http.StatusOK, flow)
}

// DeleteFlow handles DELETE /flows/{flowID}. Running sessions keep their copy.
func (s *Server) DeleteFlow(w http.ResponseWriter, r *http.Request) {
	if err := s.Flows.Delete(r.Context(), chi.URLParam(r, "flowID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// prepareImport defaults the start node to the first node and validates references.
func prepareImport(flow *domain.DoubtFlow) error {
	if flow.StartNodeID == "" && len(flow.Nodes) > 0 {
		flow.StartNodeID = flow.Nodes[0].ID
	}
	return domain.Validate(*flow)
}
