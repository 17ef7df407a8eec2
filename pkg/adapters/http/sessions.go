package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aretw0/doubtflow/pkg/domain"
	"github.com/aretw0/doubtflow/pkg/runner"
	"github.com/go-chi/chi/v5"
)

// AskResponse is returned by POST /sessions/{id}/ask.
type AskResponse struct {
	Session   *domain.Session `json:"session"`
	Escalated bool            `json:"escalated"`
	Notice    string          `json:"notice,omitempty"`
}

// StartSession handles POST /sessions.
func (s *Server) StartSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FlowID string `json:"flowId"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.Sessions.Start(r.Context(), body.FlowID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// GetSession handles GET /sessions/{sessionID}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// EndSession handles DELETE /sessions/{sessionID}.
func (s *Server) EndSession(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.End(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SelectOption handles POST /sessions/{sessionID}/select.
func (s *Server) SelectOption(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OptionID string `json:"optionId"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.Sessions.Select(r.Context(), chi.URLParam(r, "sessionID"), body.OptionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// AskQuestion handles POST /sessions/{sessionID}/ask. The call blocks for the AI round trip.
func (s *Server) AskQuestion(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Question string `json:"question"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	question, err := runner.SanitizeInputLimit(body.Question, s.maxInput)
	if err != nil {
		s.logger.Warn("Ask: Input rejected", "error", err, "size", len(body.Question))
		s.writeError(w, r, err)
		return
	}

	sess, res, err := s.Sessions.Ask(r.Context(), chi.URLParam(r, "sessionID"), question)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AskResponse{Session: sess, Escalated: res.Escalated, Notice: res.Notice})
}

// SubscribeEvents handles GET /sessions/{sessionID}/events (SSE).
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	if s.Events == nil {
		s.writeError(w, r, errors.New("event stream not configured"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, r, errors.New("streaming not supported"))
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if _, err := s.Sessions.Get(r.Context(), sessionID); err != nil {
		s.writeError(w, r, err)
		return
	}

	ch, cancel, err := s.Events.Subscribe(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("subscribe: %w", err))
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	s.logger.Info("SSE: Subscribing to Session Updates", "session_id", sessionID)

	var watchList []string
	if watch := r.URL.Query().Get("watch"); watch != "" {
		watchList = strings.Split(watch, ",")
	}

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE Client Disconnected", "session_id", sessionID)
			return
		case diff, ok := <-ch:
			if !ok {
				return
			}
			closed := diff.Status != nil && *diff.Status == domain.StatusClosed
			if matchesWatch(diff, watchList) {
				raw, err := json.Marshal(diff)
				if err != nil {
					s.logger.Error("SSE: encode diff", "error", err)
					continue
				}
				fmt.Fprintf(w, "data: %s\n\n", raw)
				flusher.Flush()
			}
			if closed {
				return
			}
		}
	}
}

// matchesWatch reports whether diff touches any watched field. An empty list matches everything.
func matchesWatch(diff *domain.SessionDiff, watchList []string) bool {
	if len(watchList) == 0 {
		return true
	}
	for _, field := range watchList {
		switch strings.TrimSpace(field) {
		case "transcript":
			if len(diff.Appended) > 0 {
				return true
			}
		case "status":
			if diff.Status != nil {
				return true
			}
		case "node":
			if diff.CurrentNodeID != nil {
				return true
			}
		case "ai":
			if diff.AIHistoryLen != nil {
				return true
			}
		}
	}
	return false
}
