package agentrunner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iceos/orchestrator/internal/executor"
)

type fakeTools struct {
	calls []string
}

func (f *fakeTools) InvokeTool(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	f.calls = append(f.calls, name)
	return map[string]interface{}{"echo": args}, nil
}

type scriptedAgent struct {
	steps []func() (*ToolCall, bool, map[string]interface{}, error)
	i     int
}

func (a *scriptedAgent) Act(ctx context.Context, transcript []string) (*ToolCall, bool, map[string]interface{}, error) {
	step := a.steps[a.i]
	a.i++
	return step()
}

func TestRun_DispatchesToRegisteredFactory(t *testing.T) {
	r := New(nil, "", nil)
	r.Register("pkg.MyAgent", func(config map[string]interface{}) (Agent, error) {
		return &scriptedAgent{steps: []func() (*ToolCall, bool, map[string]interface{}, error){
			func() (*ToolCall, bool, map[string]interface{}, error) {
				return nil, true, map[string]interface{}{"ok": true}, nil
			},
		}}, nil
	})

	out, err := r.Run(context.Background(), "pkg.MyAgent", nil, &fakeTools{}, 5)
	require.NoError(t, err)
	assert.Equal(t, true, out["ok"])
}

func TestRun_UnregisteredImportPathWithoutDefaultLLMErrors(t *testing.T) {
	r := New(nil, "", nil)
	_, err := r.Run(context.Background(), "pkg.Unknown", map[string]interface{}{"goal": "test"}, &fakeTools{}, 3)
	assert.Error(t, err)
}

func TestLoop_InvokesToolsUntilDone(t *testing.T) {
	r := New(nil, "", nil)
	tools := &fakeTools{}
	agent := &scriptedAgent{steps: []func() (*ToolCall, bool, map[string]interface{}, error){
		func() (*ToolCall, bool, map[string]interface{}, error) {
			return &ToolCall{Name: "search", Args: map[string]interface{}{"q": "x"}}, false, nil, nil
		},
		func() (*ToolCall, bool, map[string]interface{}, error) {
			return nil, true, map[string]interface{}{"answer": "done"}, nil
		},
	}}

	out, err := r.loop(context.Background(), agent, tools, 5)
	require.NoError(t, err)
	assert.Equal(t, "done", out["answer"])
	assert.Equal(t, []string{"search"}, tools.calls)
}

func TestLoop_StopsAtMaxIterations(t *testing.T) {
	r := New(nil, "", nil)
	tools := &fakeTools{}
	agent := &scriptedAgent{steps: []func() (*ToolCall, bool, map[string]interface{}, error){
		func() (*ToolCall, bool, map[string]interface{}, error) {
			return &ToolCall{Name: "loop"}, false, nil, nil
		},
		func() (*ToolCall, bool, map[string]interface{}, error) {
			return &ToolCall{Name: "loop"}, false, nil, nil
		},
	}}

	out, err := r.loop(context.Background(), agent, tools, 2)
	require.NoError(t, err)
	assert.Equal(t, "max_iterations_reached", out["stopped_reason"])
}

func TestExtractJSON_StripsSurroundingProse(t *testing.T) {
	got := extractJSON("here is my answer: {\"done\":true} thanks")
	assert.Equal(t, `{"done":true}`, got)
}

var _ executor.LLMClient = (*stubLLM)(nil)

type stubLLM struct {
	text string
}

func (s *stubLLM) Complete(ctx context.Context, req executor.LLMRequest) (executor.LLMResponse, error) {
	return executor.LLMResponse{Text: s.text}, nil
}

func TestReactAgent_ParsesDoneDecision(t *testing.T) {
	agent := &reactAgent{llm: &stubLLM{text: `{"done":true,"answer":{"x":1}}`}, goal: "finish"}
	call, done, final, err := agent.Act(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Nil(t, call)
	assert.Equal(t, float64(1), final["x"])
}
