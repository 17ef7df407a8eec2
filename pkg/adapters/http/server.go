package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/doubtflow/internal/logging"
	"github.com/aretw0/doubtflow/internal/runtime"
	"github.com/aretw0/doubtflow/pkg/authoring"
	"github.com/aretw0/doubtflow/pkg/domain"
	"github.com/aretw0/doubtflow/pkg/ports"
	"github.com/aretw0/doubtflow/pkg/runner"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Sessions is the live-session surface served over HTTP. *session.Manager implements it.
type Sessions interface {
	Start(ctx context.Context, flowID string) (*domain.Session, error)
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	Select(ctx context.Context, sessionID, optionID string) (*domain.Session, error)
	Ask(ctx context.Context, sessionID, question string) (*domain.Session, runtime.AskResult, error)
	End(ctx context.Context, sessionID string) error
}

// Server holds the collaborators behind the HTTP routes.
type Server struct {
	Flows    ports.FlowStore
	Sessions Sessions
	Drafts   *authoring.Drafts
	Events   ports.EventBus

	logger   *slog.Logger
	metrics  http.Handler
	version  string
	maxInput int
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEventBus enables GET /sessions/{id}/events. Use the bus the session manager publishes to.
func WithEventBus(bus ports.EventBus) Option {
	return func(s *Server) {
		s.Events = bus
	}
}

// WithDrafts sets the authoring draft registry. Defaults to one committing to the flow store.
func WithDrafts(drafts *authoring.Drafts) Option {
	return func(s *Server) {
		s.Drafts = drafts
	}
}

// WithMetricsHandler mounts h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithVersion sets the version reported by /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithMaxInputSize overrides the free text limit (bytes).
func WithMaxInputSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxInput = n
		}
	}
}

// NewHandler creates the HTTP handler serving flows, sessions and drafts.
func NewHandler(flows ports.FlowStore, sessions Sessions, opts ...Option) (http.Handler, error) {
	s := &Server{
		Flows:    flows,
		Sessions: sessions,
		logger:   logging.NewNop(),
		version:  "dev",
		maxInput: runner.MaxInputSize(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Drafts == nil {
		s.Drafts = authoring.NewDrafts(flows, authoring.WithLogger(s.logger))
	}

	doc, err := GetSpec()
	if err != nil {
		return nil, err
	}
	validate, err := s.validateRequests(doc)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		_, _ = w.Write(RawSpec())
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(validate)

		r.Get("/health", s.GetHealth)
		r.Get("/info", s.GetInfo)

		r.Get("/subjects", s.ListSubjects)
		r.Route("/flows", func(r chi.Router) {
			r.Get("/", s.ListFlows)
			r.Post("/", s.CreateFlow)
			r.Get("/{flowID}", s.GetFlow)
			r.Put("/{flowID}", s.ReplaceFlow)
			r.Delete("/{flowID}", s.DeleteFlow)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.StartSession)
			r.Get("/{sessionID}", s.GetSession)
			r.Delete("/{sessionID}", s.EndSession)
			r.Post("/{sessionID}/select", s.SelectOption)
			r.Post("/{sessionID}/ask", s.AskQuestion)
			r.Get("/{sessionID}/events", s.SubscribeEvents)
		})

		r.Route("/drafts", func(r chi.Router) {
			r.Post("/", s.CreateDraft)
			r.Get("/{draftID}", s.GetDraft)
			r.Patch("/{draftID}", s.UpdateDraft)
			r.Delete("/{draftID}", s.DiscardDraft)
			r.Post("/{draftID}/nodes", s.AddDraftNode)
			r.Patch("/{draftID}/nodes/{nodeID}", s.UpdateDraftNode)
			r.Delete("/{draftID}/nodes/{nodeID}", s.DeleteDraftNode)
			r.Post("/{draftID}/connect", s.ConnectDraftNodes)
			r.Post("/{draftID}/save", s.SaveDraft)
		})
	})

	return enableCORS(r), nil
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if doc, err := GetSpec(); err == nil && doc.Info != nil {
		apiVersion = doc.Info.Version
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "doubtflow-http",
		"version":     strings.TrimSpace(s.version),
		"api_version": apiVersion,
	})
}

type errorBody struct {
	Error    string   `json:"error"`
	Problems []string `json:"problems,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps domain errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := errorBody{Error: err.Error()}

	var verr *domain.ValidationError
	var refErr *domain.GraphReferenceError
	var badReq *badRequest
	switch {
	case errors.As(err, &badReq):
		status = http.StatusBadRequest
	case errors.As(err, &verr):
		status = http.StatusUnprocessableEntity
		body.Error = domain.ErrInvalidFlow.Error()
		body.Problems = verr.Problems
	case errors.As(err, &refErr):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrFlowNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrDraftNotFound),
		errors.Is(err, authoring.ErrNodeNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrSessionBusy):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrSessionClosed):
		status = http.StatusGone
	case errors.Is(err, runner.ErrInputTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, runner.ErrInvalidUTF8):
		status = http.StatusBadRequest
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, body)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &badRequest{err}
	}
	return nil
}

type badRequest struct{ err error }

func (e *badRequest) Error() string { return "invalid request body: " + e.err.Error() }
func (e *badRequest) Unwrap() error { return e.err }
