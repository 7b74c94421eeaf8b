package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iceos/orchestrator/internal/blueprint"
)

type fakeLookup struct {
	tools, agents, workflows map[string]bool
}

func (f fakeLookup) HasTool(name string) bool     { return f.tools[name] }
func (f fakeLookup) HasAgent(name string) bool     { return f.agents[name] }
func (f fakeLookup) HasWorkflow(name string) bool { return f.workflows[name] }

func validBlueprint() *blueprint.Blueprint {
	fetch := blueprint.NodeSpec{ID: "fetch", Kind: blueprint.KindTool, ToolName: "http.get", OutputSchema: map[string]interface{}{"body": "string"}}
	fetch.ApplyDefaults()
	summarize := blueprint.NodeSpec{
		ID:           "summarize",
		Kind:         blueprint.KindLLM,
		Dependencies: []string{"fetch"},
		Prompt:       "Summarize {{ fetch.body }}",
		InputMappings: map[string]blueprint.InputMapping{
			"fetch": {SourceNodeID: "fetch", SourceOutputPath: "body"},
		},
	}
	summarize.ApplyDefaults()
	return &blueprint.Blueprint{
		SchemaVersion: "1.1.0",
		BlueprintID:   "bp-1",
		Nodes:         []blueprint.NodeSpec{fetch, summarize},
	}
}

func TestValidate_ValidBlueprintHasNoErrors(t *testing.T) {
	lookup := fakeLookup{tools: map[string]bool{"http.get": true}}
	v := NewValidator(lookup)
	result := v.Validate(validBlueprint())
	assert.True(t, result.IsValid, "errors: %v", result.Errors)
	assert.True(t, result.CanFinalize)
}

func TestValidate_RejectsUnacceptedSchemaVersion(t *testing.T) {
	bp := validBlueprint()
	bp.SchemaVersion = "0.1.0"
	v := NewValidator(nil)
	result := v.Validate(bp)
	require.False(t, result.IsValid)
	assert.Contains(t, result.Errors[0], "schema_version")
}

func TestValidate_DetectsCycle(t *testing.T) {
	a := blueprint.NodeSpec{ID: "a", Kind: blueprint.KindTool, ToolName: "x", Dependencies: []string{"b"}}
	b := blueprint.NodeSpec{ID: "b", Kind: blueprint.KindTool, ToolName: "x", Dependencies: []string{"a"}}
	a.ApplyDefaults()
	b.ApplyDefaults()
	bp := &blueprint.Blueprint{SchemaVersion: "1.1.0", BlueprintID: "cyc", Nodes: []blueprint.NodeSpec{a, b}}

	v := NewValidator(fakeLookup{tools: map[string]bool{"x": true}})
	result := v.Validate(bp)
	require.False(t, result.IsValid)
	found := false
	for _, e := range result.Errors {
		if e == "blueprint contains a cycle among node dependencies" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidate_UnresolvedPlaceholderReported(t *testing.T) {
	llm := blueprint.NodeSpec{ID: "n", Kind: blueprint.KindLLM, Prompt: "Hello {{ missing.value }}"}
	llm.ApplyDefaults()
	bp := &blueprint.Blueprint{SchemaVersion: "1.1.0", BlueprintID: "b", Nodes: []blueprint.NodeSpec{llm}}

	v := NewValidator(nil)
	result := v.Validate(bp)
	require.False(t, result.IsValid)
	assert.Contains(t, result.Errors[0], "missing.value")
}

func TestValidate_ConditionExpressionMustParse(t *testing.T) {
	cond := blueprint.NodeSpec{ID: "c", Kind: blueprint.KindCondition, Expression: "output.score[0]", TrueBranch: []string{}, FalseBranch: []string{}}
	cond.ApplyDefaults()
	bp := &blueprint.Blueprint{SchemaVersion: "1.1.0", BlueprintID: "b", Nodes: []blueprint.NodeSpec{cond}}

	v := NewValidator(nil)
	result := v.Validate(bp)
	require.False(t, result.IsValid)
}

func TestValidate_SwarmRequiresDistinctRoles(t *testing.T) {
	swarm := blueprint.NodeSpec{
		ID:   "s",
		Kind: blueprint.KindSwarm,
		Agents: []blueprint.AgentSpec{
			{Package: "a", Role: "lead"},
			{Package: "b", Role: "lead"},
		},
	}
	swarm.OutputSchema = map[string]interface{}{"result": "string"}
	bp := &blueprint.Blueprint{SchemaVersion: "1.1.0", BlueprintID: "b", Nodes: []blueprint.NodeSpec{swarm}}

	v := NewValidator(nil)
	result := v.Validate(bp)
	require.False(t, result.IsValid)
}

func TestValidateIncremental_SuggestsOutputSchema(t *testing.T) {
	pb := &blueprint.PartialBlueprint{SchemaVersion: "1.1.0", BlueprintID: "b"}
	n := blueprint.PartialNodeSpec{NodeSpec: blueprint.NodeSpec{ID: "t", Kind: blueprint.KindTool, ToolName: "x"}}
	pb.AddNode(n)

	v := NewValidator(fakeLookup{tools: map[string]bool{"x": true}})
	result := v.ValidateIncremental(pb)
	assert.NotEmpty(t, result.Suggestions)
}
