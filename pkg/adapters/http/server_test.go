package http_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/doubtflow/internal/runtime"
	httpadapter "github.com/aretw0/doubtflow/pkg/adapters/http"
	"github.com/aretw0/doubtflow/pkg/adapters/memory"
	"github.com/aretw0/doubtflow/pkg/adapters/openai"
	"github.com/aretw0/doubtflow/pkg/domain"
	"github.com/aretw0/doubtflow/pkg/observability"
	"github.com/aretw0/doubtflow/pkg/ports"
	"github.com/aretw0/doubtflow/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tutorFlow() domain.DoubtFlow {
	return domain.DoubtFlow{
		ID:          "physics",
		Name:        "Newton",
		Subject:     "Physics",
		StartNodeID: "Q1",
		Nodes: []domain.FlowNode{
			{ID: "Q1", Type: domain.NodeTypeQuestion, Content: "Pick one", Options: []domain.FlowOption{
				{ID: "A", Label: "Second law", NextNodeID: "R1"},
				{ID: "AI", Label: "Ask", NextNodeID: "ai1"},
			}},
			{ID: "R1", Type: domain.NodeTypeAnswer, Content: "F = ma", Options: []domain.FlowOption{
				{ID: "B", Label: "Back", NextNodeID: "Q1"},
			}},
			{ID: "ai1", Type: domain.NodeTypeAI, Content: "Go ahead."},
		},
	}
}

type fixture struct {
	handler http.Handler
	store   ports.FlowStore
	streams *httpadapter.StreamManager
}

func newFixture(t *testing.T, opts ...httpadapter.Option) *fixture {
	t.Helper()
	store := memory.NewStore(tutorFlow())
	streams := httpadapter.NewStreamManager(nil)

	reg := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	mgr := session.NewManager(store, openai.Static{Answer: "Because inertia."},
		session.WithEventBus(streams),
		session.WithLifecycleHooks(metrics.Hooks()),
	)
	opts = append([]httpadapter.Option{
		httpadapter.WithEventBus(streams),
		httpadapter.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		httpadapter.WithVersion("1.2.3\n"),
	}, opts...)

	h, err := httpadapter.NewHandler(store, mgr, opts...)
	require.NoError(t, err)
	return &fixture{handler: h, store: store, streams: streams}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestSpecIsValid(t *testing.T) {
	doc, err := httpadapter.GetSpec()
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", doc.Info.Version)
}

func TestServer_Meta(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/info", nil)
	info := decodeBody[map[string]string](t, w)
	assert.Equal(t, "1.2.3", info["version"])
	assert.Equal(t, "1.0.0", info["api_version"])

	w = f.do(t, http.MethodGet, "/openapi.yaml", nil)
	assert.Contains(t, w.Body.String(), "openapi: 3.0.3")

	w = f.do(t, http.MethodOptions, "/flows", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_Flows(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/flows?subject=Physics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]domain.DoubtFlow](t, w), 1)

	w = f.do(t, http.MethodGet, "/flows?subject=Latin", nil)
	assert.Equal(t, "[]\n", w.Body.String())

	w = f.do(t, http.MethodGet, "/flows/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	t.Run("Schema Violation", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/flows", map[string]any{"name": "x", "subject": "y"})
		assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	})

	t.Run("Dangling Reference", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/flows", domain.DoubtFlow{
			Name: "Broken", Subject: "Art",
			Nodes: []domain.FlowNode{{ID: "a", Type: domain.NodeTypeQuestion, Options: []domain.FlowOption{{ID: "o", Label: "O", NextNodeID: "ghost"}}}},
		})
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		body := decodeBody[map[string]any](t, w)
		assert.Len(t, body["problems"], 1)
	})

	w = f.do(t, http.MethodPost, "/flows", domain.DoubtFlow{
		Name: "Colors", Subject: "Art",
		Nodes: []domain.FlowNode{{ID: "c1", Type: domain.NodeTypeAnswer, Content: "Red"}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeBody[domain.DoubtFlow](t, w)
	assert.True(t, strings.HasPrefix(created.ID, "flow-"))
	assert.Equal(t, "c1", created.StartNodeID)

	w = f.do(t, http.MethodGet, "/subjects", nil)
	assert.Equal(t, []string{"Physics", "Art"}, decodeBody[[]string](t, w))

	created.Name = "Colours"
	w = f.do(t, http.MethodPut, "/flows/"+created.ID, created)
	require.Equal(t, http.StatusOK, w.Code)
	got, err := f.store.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Colours", got.Name)

	w = f.do(t, http.MethodPut, "/flows/nope", created)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodDelete, "/flows/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = f.do(t, http.MethodGet, "/flows", nil)
	assert.Len(t, decodeBody[[]domain.DoubtFlow](t, w), 1)
}

func TestServer_Sessions(t *testing.T) {
	f := newFixture(t, httpadapter.WithMaxInputSize(32))

	w := f.do(t, http.MethodPost, "/sessions", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code, "flowId is required")

	w = f.do(t, http.MethodPost, "/sessions", map[string]string{"flowId": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/sessions", map[string]string{"flowId": "physics"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	s := decodeBody[domain.Session](t, w)
	assert.Equal(t, "Q1", s.CurrentNode.ID)
	base := "/sessions/" + s.ID

	w = f.do(t, http.MethodPost, base+"/select", map[string]string{"optionId": "AI"})
	require.Equal(t, http.StatusOK, w.Code)
	s = decodeBody[domain.Session](t, w)
	assert.Equal(t, "ai1", s.CurrentNode.ID)

	w = f.do(t, http.MethodPost, base+"/ask", map[string]string{"question": strings.Repeat("?", 33)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = f.do(t, http.MethodPost, base+"/ask", map[string]string{"question": "why\x07?"})
	require.Equal(t, http.StatusOK, w.Code)
	res := decodeBody[httpadapter.AskResponse](t, w)
	assert.True(t, res.Escalated)
	assert.Empty(t, res.Notice)
	last, _ := res.Session.LastMessage()
	assert.Equal(t, "Because inertia.", last.Content)
	assert.Equal(t, runtime.OptionFollowUp, last.Options[0].ID)
	assert.Equal(t, "why?", res.Session.AIHistory[0].Content, "control characters stripped")

	w = f.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = f.do(t, http.MethodPost, base+"/select", map[string]string{"optionId": "A"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/metrics", nil)
	assert.Contains(t, w.Body.String(), "doubtflow_escalations_total")
	assert.Contains(t, w.Body.String(), "doubtflow_active_sessions 0")
}

func TestServer_Drafts(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/drafts", map[string]string{"name": "Optics"})
	require.Equal(t, http.StatusCreated, w.Code)
	draft := decodeBody[httpadapter.DraftView](t, w)
	base := "/drafts/" + draft.ID

	w = f.do(t, http.MethodPost, base+"/nodes", map[string]string{"type": "quiz"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "type enum enforced")

	var ids []string
	for _, typ := range []string{"question", "answer", "ai"} {
		w = f.do(t, http.MethodPost, base+"/nodes", map[string]string{"type": typ})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		ids = append(ids, decodeBody[struct {
			NodeID string `json:"nodeId"`
		}](t, w).NodeID)
	}
	assert.Equal(t, []string{"node-1", "node-2", "node-3"}, ids)

	w = f.do(t, http.MethodPatch, base+"/nodes/node-1", map[string]any{
		"content": "What bends light?",
		"options": []domain.FlowOption{{ID: "lens", Label: "Lenses"}},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, base+"/connect", map[string]string{"source": "node-1", "optionId": "lens", "target": "node-2"})
	require.Equal(t, http.StatusOK, w.Code)
	draft = decodeBody[httpadapter.DraftView](t, w)
	assert.Equal(t, "node-2", draft.Canonical[0].Options[0].NextNodeID)
	assert.Len(t, draft.Edges, 1)

	w = f.do(t, http.MethodPatch, base+"/nodes/ghost", map[string]any{"content": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Subject still missing
	w = f.do(t, http.MethodPost, base+"/save", nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "subject is required")

	w = f.do(t, http.MethodPatch, base, map[string]string{"subject": "Physics"})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, base+"/save", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	saved := decodeBody[domain.DoubtFlow](t, w)
	assert.Equal(t, "node-1", saved.StartNodeID)
	assert.Len(t, saved.Nodes, 3)

	w = f.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "draft discarded after save")

	w = f.do(t, http.MethodGet, "/flows?subject=Physics", nil)
	assert.Len(t, decodeBody[[]domain.DoubtFlow](t, w), 2)
}

func TestServer_SubscribeEvents(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	w := f.do(t, http.MethodPost, "/sessions", map[string]string{"flowId": "physics"})
	require.Equal(t, http.StatusCreated, w.Code)
	s := decodeBody[domain.Session](t, w)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sessions/"+s.ID+"/events?watch=transcript", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, "event: ping", lines.Text())

	require.Eventually(t, func() bool { return f.streams.Subscribers(s.ID) == 1 }, 2*time.Second, 10*time.Millisecond)

	w = f.do(t, http.MethodPost, "/sessions/"+s.ID+"/select", map[string]string{"optionId": "A"})
	require.Equal(t, http.StatusOK, w.Code)

	var data string
	for lines.Scan() {
		if d, ok := strings.CutPrefix(lines.Text(), "data: "); ok && d != "connected" {
			data = d
			break
		}
	}
	var diff domain.SessionDiff
	require.NoError(t, json.Unmarshal([]byte(data), &diff))
	require.Len(t, diff.Appended, 2)
	assert.Equal(t, "Second law", diff.Appended[0].Content)
	assert.Equal(t, "F = ma", diff.Appended[1].Content)

	// Ending the session closes the stream
	w = f.do(t, http.MethodDelete, "/sessions/"+s.ID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Eventually(t, func() bool { return f.streams.Subscribers(s.ID) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServer_EventsUnknownSession(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/sessions/nope/events", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStreamManager_Contract(t *testing.T) {
	ports.RunEventBusContract(t, httpadapter.NewStreamManager(nil))
}
