package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/doubtflow/internal/config"
	"github.com/aretw0/doubtflow/internal/logging"
	httpAdapter "github.com/aretw0/doubtflow/pkg/adapters/http"
	"github.com/aretw0/doubtflow/pkg/adapters/openai"
	redisAdapter "github.com/aretw0/doubtflow/pkg/adapters/redis"
	"github.com/aretw0/doubtflow/pkg/runner"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildApp(t *testing.T, mutate func(*config.Config), opts BuildOptions) *App {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	app, err := Build(context.Background(), cfg, logging.NewNop(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func TestBuild_InProcess(t *testing.T) {
	reg := prometheus.NewRegistry()
	app := buildApp(t, nil, BuildOptions{Registry: reg, Escalator: openai.Static{Answer: "ok"}})

	assert.IsType(t, &httpAdapter.StreamManager{}, app.Bus)
	require.NotNil(t, app.Metrics)

	flows, err := app.Engine.Flows().List(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, flows, "default flows are seeded")

	_, err = app.Engine.Start(context.Background(), flows[0].ID)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestBuild_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	app := buildApp(t, func(c *config.Config) { c.Redis.Addr = mr.Addr() }, BuildOptions{})

	assert.IsType(t, &redisAdapter.Bus{}, app.Bus)

	ctx := context.Background()
	flows, err := app.Engine.Flows().List(ctx)
	require.NoError(t, err)
	s, err := app.Engine.Start(ctx, flows[0].ID)
	require.NoError(t, err)
	last, _ := s.LastMessage()
	_, err = app.Engine.Select(ctx, s.ID, last.Options[0].ID)
	require.NoError(t, err, "transitions run under the redis lock")
}

func TestBuild_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := config.Default()
	cfg.Redis.Addr = addr
	_, err := Build(context.Background(), cfg, logging.NewNop(), BuildOptions{})
	assert.ErrorContains(t, err, "failed to connect to redis")
}

func TestRunChat_Text(t *testing.T) {
	app := buildApp(t, nil, BuildOptions{Escalator: openai.Static{Answer: "x = 4"}})

	var out bytes.Buffer
	in := strings.NewReader("1\n1\n/quit\n")
	err := RunChat(context.Background(), app, ChatOptions{In: in, Out: &out})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Available flows:")
	assert.Contains(t, text, "Algebra")
	assert.Contains(t, text, "Linear equations are equations of the first degree")
	assert.Contains(t, text, ">>> Session ended at 'linear' node.")
}

func TestRunChat_JSON(t *testing.T) {
	app := buildApp(t, nil, BuildOptions{Escalator: openai.Static{Answer: "x = 4"}})

	var out bytes.Buffer
	in := strings.NewReader(`{"optionId":"opt3"}` + "\n" + `{"question":"What is x?"}` + "\n")
	err := RunChat(context.Background(), app, ChatOptions{FlowID: "math-algebra-flow", JSON: true, In: in, Out: &out})
	require.NoError(t, err)

	var contents []string
	dec := json.NewDecoder(&out)
	for dec.More() {
		var ev runner.Event
		require.NoError(t, dec.Decode(&ev))
		if ev.Type == "message" {
			contents = append(contents, ev.Message.Content)
		}
	}
	require.NotEmpty(t, contents)
	assert.Equal(t, "x = 4", contents[len(contents)-1])
	assert.NotContains(t, out.String(), "Available flows:")
}

func TestMatchFlow(t *testing.T) {
	app := buildApp(t, nil, BuildOptions{})
	flows, err := app.Engine.Flows().List(context.Background())
	require.NoError(t, err)

	id, ok := matchFlow(flows, " 2 ")
	assert.True(t, ok)
	assert.Equal(t, flows[1].ID, id)

	id, ok = matchFlow(flows, flows[0].ID)
	assert.True(t, ok)
	assert.Equal(t, flows[0].ID, id)

	_, ok = matchFlow(flows, "0")
	assert.False(t, ok)
	_, ok = matchFlow(flows, "physics?")
	assert.False(t, ok)
}
