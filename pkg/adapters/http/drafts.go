package http

import (
	"net/http"

	"github.com/aretw0/doubtflow/pkg/authoring"
	"github.com/aretw0/doubtflow/pkg/domain"
	"github.com/go-chi/chi/v5"
)

// DraftView is the editor state returned by draft endpoints.
type DraftView struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Subject   string                 `json:"subject"`
	EditingID string                 `json:"editingId,omitempty"`
	Nodes     []authoring.EditorNode `json:"nodes"`
	Edges     []authoring.Edge       `json:"edges"`
	Canonical []domain.FlowNode      `json:"canonical"`
}

func draftView(id string, b *authoring.Builder) DraftView {
	draft := b.Draft()
	v := DraftView{
		ID:        id,
		Name:      draft.Name,
		Subject:   draft.Subject,
		EditingID: b.EditingID(),
		Nodes:     b.Canvas().Nodes(),
		Edges:     b.Canvas().Edges(),
		Canonical: draft.Nodes,
	}
	if v.Canonical == nil {
		v.Canonical = []domain.FlowNode{}
	}
	return v
}

func (s *Server) builder(w http.ResponseWriter, r *http.Request) (string, *authoring.Builder, bool) {
	id := chi.URLParam(r, "draftID")
	b, err := s.Drafts.Get(id)
	if err != nil {
		s.writeError(w, r, err)
		return "", nil, false
	}
	return id, b, true
}

// CreateDraft handles POST /drafts.
func (s *Server) CreateDraft(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name    string `json:"name"`
		Subject string `json:"subject"`
		FlowID  string `json:"flowId"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	id, b, err := s.Drafts.Create(r.Context(), body.Name, body.Subject, body.FlowID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, draftView(id, b))
}

// GetDraft handles GET /drafts/{draftID}.
func (s *Server) GetDraft(w http.ResponseWriter, r *http.Request) {
	id, b, ok := s.builder(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, draftView(id, b))
}

// UpdateDraft handles PATCH /drafts/{draftID} (name and subject).
func (s *Server) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	id, b, ok := s.builder(w, r)
	if !ok {
		return
	}
	var body struct {
		Name    *string `json:"name"`
		Subject *string `json:"subject"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.Name != nil {
		b.SetName(*body.Name)
	}
	if body.Subject != nil {
		b.SetSubject(*body.Subject)
	}
	writeJSON(w, http.StatusOK, draftView(id, b))
}

// DiscardDraft handles DELETE /drafts/{draftID}.
func (s *Server) DiscardDraft(w http.ResponseWriter, r *http.Request) {
	s.Drafts.Delete(chi.URLParam(r, "draftID"))
	w.WriteHeader(http.StatusNoContent)
}

// AddDraftNode handles POST /drafts/{draftID}/nodes.
func (s *Server) AddDraftNode(w http.ResponseWriter, r *http.Request) {
	id, b, ok := s.builder(w, r)
	if !ok {
		return
	}
	var body struct {
		Type domain.NodeType `json:"type"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	nodeID, err := b.Canvas().AddNode(body.Type)
	if err != nil {
		s.writeError(w, r, &badRequest{err})
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		NodeID string    `json:"nodeId"`
		Draft  DraftView `json:"draft"`
	}{nodeID, draftView(id, b)})
}

// UpdateDraftNode handles PATCH /drafts/{draftID}/nodes/{nodeID}.
func (s *Server) UpdateDraftNode(w http.ResponseWriter, r *http.Request) {
	id, b, ok := s.builder(w, r)
	if !ok {
		return
	}
	var patch authoring.NodePatch
	if err := decode(r, &patch); err != nil {
		s.writeError(w, r, err)
		return
	}
	if !b.Canvas().UpdateNode(chi.URLParam(r, "nodeID"), patch) {
		s.writeError(w, r, authoring.ErrNodeNotFound)
		return
	}
	writeJSON(w, http.StatusOK, draftView(id, b))
}

// DeleteDraftNode handles DELETE /drafts/{draftID}/nodes/{nodeID}.
func (s *Server) DeleteDraftNode(w http.ResponseWriter, r *http.Request) {
	_, b, ok := s.builder(w, r)
	if !ok {
		return
	}
	if !b.Canvas().DeleteNode(chi.URLParam(r, "nodeID")) {
		s.writeError(w, r, authoring.ErrNodeNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ConnectDraftNodes handles POST /drafts/{draftID}/connect.
func (s *Server) ConnectDraftNodes(w http.ResponseWriter, r *http.Request) {
	id, b, ok := s.builder(w, r)
	if !ok {
		return
	}
	var body struct {
		Source   string `json:"source"`
		OptionID string `json:"optionId"`
		Target   string `json:"target"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := b.Canvas().Connect(body.Source, body.OptionID, body.Target); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draftView(id, b))
}

// SaveDraft handles POST /drafts/{draftID}/save. The draft is discarded once committed.
func (s *Server) SaveDraft(w http.ResponseWriter, r *http.Request) {
	id, b, ok := s.builder(w, r)
	if !ok {
		return
	}
	flow, err := b.Save(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Drafts.Delete(id)
	writeJSON(w, http.StatusCreated, flow)
}
