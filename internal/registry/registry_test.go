package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iceos/orchestrator/internal/blueprint"
)

func TestRegisterInstance_IdempotentSameTarget(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterInstance("tool", "http.get", "impl-v1"))
	require.NoError(t, r.RegisterInstance("tool", "http.get", "impl-v1"))

	got, err := r.GetToolInstance("http.get")
	require.NoError(t, err)
	assert.Equal(t, "impl-v1", got)
}

func TestRegisterInstance_ConflictOnDifferentTarget(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterInstance("tool", "http.get", "impl-v1"))
	err := r.RegisterInstance("tool", "http.get", "impl-v2")
	require.Error(t, err)
	var conflict *ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestGetToolInstance_NotFound(t *testing.T) {
	r := New()
	_, err := r.GetToolInstance("missing")
	require.Error(t, err)
	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestRegisterAgent_AndLookup(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterAgent("researcher", "pkg/agents/researcher.Agent"))
	path, err := r.GetAgentImportPath("researcher")
	require.NoError(t, err)
	assert.Equal(t, "pkg/agents/researcher.Agent", path)
	assert.True(t, r.HasAgent("researcher"))
	assert.False(t, r.HasAgent("nope"))
}

func TestWorkflowFactory_BuildsInstance(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterWorkflowFactory("sub-flow", func(cfg map[string]interface{}) (interface{}, error) {
		return cfg["x"], nil
	}))
	out, err := r.GetWorkflowInstance("sub-flow", map[string]interface{}{"x": 42})
	require.NoError(t, err)
	assert.Equal(t, 42, out)
	assert.True(t, r.HasWorkflow("sub-flow"))
}

func TestRegisterExecutor_RoundTrip(t *testing.T) {
	r := New()
	fn := func() string { return "tool-executor" }
	require.NoError(t, r.RegisterExecutor(blueprint.KindTool, fn))

	got, err := r.GetExecutor(blueprint.KindTool)
	require.NoError(t, err)
	typed, ok := got.(func() string)
	require.True(t, ok)
	assert.Equal(t, "tool-executor", typed())
}

func TestLoadEntryPoints_UnknownEntityClass(t *testing.T) {
	r := New()
	err := r.LoadEntryPoints("tools", []EntryPoint{{EntityClass: "bogus", Name: "x"}})
	require.Error(t, err)
}
