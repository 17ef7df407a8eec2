package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/doubtflow/internal/logging"
	"github.com/aretw0/doubtflow/internal/runtime"
	"github.com/aretw0/doubtflow/pkg/domain"
	"github.com/aretw0/doubtflow/pkg/ports"
	"github.com/aretw0/doubtflow/pkg/runner"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// FlowsURI is the resource listing every flow.
const FlowsURI = "doubtflow://flows"

// SessionResponse aligns with the HTTP session payload and is shared by every session tool.
type SessionResponse struct {
	Session *domain.Session     `json:"session" jsonschema_description:"The current session snapshot"`
	Options []domain.FlowOption `json:"options" jsonschema_description:"Options the learner can pick now"`
	Notice  string              `json:"notice,omitempty" jsonschema_description:"Set when the AI service failed"`
}

// Sessions is the live-session surface exposed as tools. *session.Manager implements it.
type Sessions interface {
	Start(ctx context.Context, flowID string) (*domain.Session, error)
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	Select(ctx context.Context, sessionID, optionID string) (*domain.Session, error)
	Ask(ctx context.Context, sessionID, question string) (*domain.Session, runtime.AskResult, error)
	End(ctx context.Context, sessionID string) error
}

// Server exposes flows and sessions as an MCP server.
type Server struct {
	flows     ports.FlowStore
	sessions  Sessions
	logger    *slog.Logger
	maxInput  int
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithMaxInputSize sets the byte limit for questions sent through the ask tool.
// It should match the limit the HTTP adapter enforces.
func WithMaxInputSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxInput = n
		}
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(flows ports.FlowStore, sessions Sessions, version string, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		flows:     flows,
		sessions:  sessions,
		logger:    logger,
		maxInput:  runner.MaxInputSize(),
		mcpServer: server.NewMCPServer("doubtflow-mcp", version),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the MCP SSE transport on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_flows",
		mcp.WithDescription("List the available doubt-resolution flows, optionally for one subject."),
		mcp.WithString("subject", mcp.Description("Only flows of this subject")),
	), s.handleListFlows)

	s.mcpServer.AddTool(mcp.NewTool("start_session",
		mcp.WithDescription("Start a learner session on a flow and return its first message."),
		mcp.WithString("flow_id", mcp.Required(), mcp.Description("Flow to start")),
		mcp.WithOutputSchema[SessionResponse](),
	), mcp.NewStructuredToolHandler(s.handleStart))

	s.mcpServer.AddTool(mcp.NewTool("select_option",
		mcp.WithDescription("Pick one of the options currently offered by the session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithString("option_id", mcp.Required(), mcp.Description("ID of the option to pick")),
		mcp.WithOutputSchema[SessionResponse](),
	), mcp.NewStructuredToolHandler(s.handleSelect))

	s.mcpServer.AddTool(mcp.NewTool("ask",
		mcp.WithDescription("Send a free-text question while the session sits on an AI node."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithString("question", mcp.Required(), mcp.Description("The learner's question")),
		mcp.WithOutputSchema[SessionResponse](),
	), mcp.NewStructuredToolHandler(s.handleAsk))

	s.mcpServer.AddTool(mcp.NewTool("get_transcript",
		mcp.WithDescription("Return the session's current snapshot and transcript."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithOutputSchema[SessionResponse](),
	), mcp.NewStructuredToolHandler(s.handleTranscript))

	s.mcpServer.AddTool(mcp.NewTool("end_session",
		mcp.WithDescription("End a session. Late AI replies for it are discarded."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
	), s.handleEnd)
}

func (s *Server) handleListFlows(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var (
		flows []domain.DoubtFlow
		err   error
	)
	if subject := request.GetString("subject", ""); subject != "" {
		flows, err = s.flows.BySubject(ctx, subject)
	} else {
		flows, err = s.flows.List(ctx)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}
	jsonBytes, _ := json.Marshal(summaries(flows))
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleStart(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SessionResponse, error) {
	flowID, _ := args["flow_id"].(string)
	sess, err := s.sessions.Start(ctx, flowID)
	if err != nil {
		return SessionResponse{}, fmt.Errorf("start failed: %w", err)
	}
	return respond(sess, ""), nil
}

func (s *Server) handleSelect(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SessionResponse, error) {
	sessionID, _ := args["session_id"].(string)
	optionID, _ := args["option_id"].(string)
	sess, err := s.sessions.Select(ctx, sessionID, optionID)
	if err != nil {
		return SessionResponse{}, fmt.Errorf("select failed: %w", err)
	}
	return respond(sess, ""), nil
}

func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SessionResponse, error) {
	sessionID, _ := args["session_id"].(string)
	question, _ := args["question"].(string)

	clean, err := runner.SanitizeInputLimit(question, s.maxInput)
	if err != nil {
		s.logger.Warn("MCP Ask: Input rejected", "error", err, "size", len(question))
		return SessionResponse{}, fmt.Errorf("input rejected: %w", err)
	}

	sess, res, err := s.sessions.Ask(ctx, sessionID, clean)
	if err != nil {
		return SessionResponse{}, fmt.Errorf("ask failed: %w", err)
	}
	return respond(sess, res.Notice), nil
}

func (s *Server) handleTranscript(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SessionResponse, error) {
	sessionID, _ := args["session_id"].(string)
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return SessionResponse{}, fmt.Errorf("get failed: %w", err)
	}
	return respond(sess, ""), nil
}

func (s *Server) handleEnd(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.sessions.End(ctx, sessionID); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("unknown session %q", sessionID)), nil
		}
		return nil, err
	}
	return mcp.NewToolResultText("session ended"), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(FlowsURI, "Doubt-resolution flows",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		flows, err := s.flows.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list flows: %w", err)
		}
		jsonBytes, _ := json.Marshal(flows)

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      FlowsURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}

// FlowSummary is the list_flows entry.
type FlowSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Nodes   int    `json:"nodes"`
}

func summaries(flows []domain.DoubtFlow) []FlowSummary {
	out := make([]FlowSummary, 0, len(flows))
	for _, f := range flows {
		out = append(out, FlowSummary{ID: f.ID, Name: f.Name, Subject: f.Subject, Nodes: len(f.Nodes)})
	}
	return out
}

func respond(sess *domain.Session, notice string) SessionResponse {
	resp := SessionResponse{Session: sess, Notice: notice, Options: []domain.FlowOption{}}
	if last, ok := sess.LastMessage(); ok && last.Role == domain.RoleAssistant && last.Options != nil {
		resp.Options = last.Options
	}
	return resp
}
