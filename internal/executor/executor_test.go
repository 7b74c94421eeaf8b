package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iceos/orchestrator/internal/blueprint"
	"github.com/iceos/orchestrator/internal/execctx"
	"github.com/iceos/orchestrator/internal/expr"
	"github.com/iceos/orchestrator/internal/registry"
	"github.com/iceos/orchestrator/internal/run"
)

type echoTool struct{}

func (echoTool) Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{"echoed": args["msg"]}, nil
}

func TestToolExecutor_Success(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.RegisterInstance("tool", "echo", echoTool{}))

	node := &blueprint.NodeSpec{
		ID:       "t1",
		Kind:     blueprint.KindTool,
		ToolName: "echo",
		ToolArgs: map[string]interface{}{"msg": "hello"},
	}
	exec := &ToolExecutor{Registry: reg}
	rctx := execctx.New("run-1", nil)

	result := exec.Execute(context.Background(), node, rctx)
	require.True(t, result.Success)
	assert.Equal(t, "hello", result.Output["echoed"])
}

func TestToolExecutor_UnregisteredToolIsRegistryError(t *testing.T) {
	reg := registry.New()
	node := &blueprint.NodeSpec{ID: "t1", Kind: blueprint.KindTool, ToolName: "missing"}
	exec := &ToolExecutor{Registry: reg}
	rctx := execctx.New("run-1", nil)

	result := exec.Execute(context.Background(), node, rctx)
	require.False(t, result.Success)
	assert.Equal(t, "RegistryError", result.Metadata.ErrorType)
}

func TestConditionExecutor_EvaluatesExpression(t *testing.T) {
	node := &blueprint.NodeSpec{
		ID:         "c1",
		Kind:       blueprint.KindCondition,
		Expression: "score >= 80",
		InputMappings: map[string]blueprint.InputMapping{
			"score": {SourceNodeID: "scorer", SourceOutputPath: "score"},
		},
	}
	exec := &ConditionExecutor{Evaluator: expr.NewEvaluator()}
	rctx := execctx.New("run-1", nil)
	rctx.Commit("scorer", run.NodeExecutionResult{Success: true, Output: map[string]interface{}{"score": float64(92)}})

	result := exec.Execute(context.Background(), node, rctx)
	require.True(t, result.Success)
	assert.Equal(t, true, result.Output["result"])
}

func TestConditionExecutor_EvaluatesAgainstInitialContextWithoutInputMapping(t *testing.T) {
	node := &blueprint.NodeSpec{
		ID:         "c1",
		Kind:       blueprint.KindCondition,
		Expression: "x > 0",
	}
	exec := &ConditionExecutor{Evaluator: expr.NewEvaluator()}
	rctx := execctx.New("run-1", map[string]interface{}{"x": float64(5)})

	result := exec.Execute(context.Background(), node, rctx)
	require.True(t, result.Success)
	assert.Equal(t, true, result.Output["result"])
}

func TestBranchDecision_SelectsTrueBranchWhenConditionHolds(t *testing.T) {
	node := &blueprint.NodeSpec{TrueBranch: []string{"a"}, FalseBranch: []string{"b"}}
	result := run.NodeExecutionResult{Success: true, Output: map[string]interface{}{"result": true}}
	enabled, skipped := BranchDecision(node, result)
	assert.Equal(t, []string{"a"}, enabled)
	assert.Equal(t, []string{"b"}, skipped)
}

func TestMonitorExecutor_AlertOnlyDoesNotReportAction(t *testing.T) {
	node := &blueprint.NodeSpec{
		ID:               "m1",
		Kind:             blueprint.KindMonitor,
		MetricExpression: "cost > 10",
		ActionOnTrigger:  blueprint.MonitorAlertOnly,
		InputMappings: map[string]blueprint.InputMapping{
			"cost": {SourceNodeID: "spend", SourceOutputPath: "cost"},
		},
	}
	exec := &MonitorExecutor{Evaluator: expr.NewEvaluator()}
	rctx := execctx.New("run-1", nil)
	rctx.Commit("spend", run.NodeExecutionResult{Success: true, Output: map[string]interface{}{"cost": float64(5)}})

	result := exec.Execute(context.Background(), node, rctx)
	require.True(t, result.Success)
	assert.Equal(t, "", result.Output["action_taken"])
	assert.Equal(t, 0, result.Output["triggers_fired"])
}

type fakeWorkflowRunner struct {
	out map[string]interface{}
}

func (f fakeWorkflowRunner) RunWorkflow(ctx context.Context, workflowRef string, initialContext map[string]interface{}) (map[string]interface{}, bool, error) {
	return f.out, true, nil
}

func TestRecursiveExecutor_ConvergenceSeesInitialContextGlobal(t *testing.T) {
	node := &blueprint.NodeSpec{
		ID:                   "r1",
		Kind:                 blueprint.KindRecursive,
		WorkflowRef:          "child",
		ConvergenceCondition: "threshold > 0",
	}
	exec := &RecursiveExecutor{
		Registry:  registry.New(),
		Evaluator: expr.NewEvaluator(),
		Workflows: fakeWorkflowRunner{out: map[string]interface{}{"value": 1}},
	}
	rctx := execctx.New("run-1", map[string]interface{}{"threshold": float64(1)})

	result := exec.Execute(context.Background(), node, rctx)
	require.True(t, result.Success)
	assert.Equal(t, true, result.Output["converged"])
	assert.Equal(t, "condition_met", result.Output["reason"])
	assert.Equal(t, 1, result.Output["_recursive_iteration"])
}

type noResponder struct{}

func (noResponder) AwaitResponse(ctx context.Context, runID, nodeID string) (map[string]interface{}, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type nullPublisher struct{}

func (nullPublisher) Publish(run.Event) {}

func TestHumanExecutor_TimesOut(t *testing.T) {
	node := &blueprint.NodeSpec{
		ID:                  "h1",
		Kind:                blueprint.KindHuman,
		ApprovalType:        blueprint.ApprovalApproveReject,
		HumanTimeoutSeconds: 0.01,
	}
	exec := &HumanExecutor{Events: nullPublisher{}, Responder: noResponder{}}
	rctx := execctx.New("run-1", nil)

	start := time.Now()
	result := exec.Execute(context.Background(), node, rctx)
	require.False(t, result.Success)
	assert.Equal(t, "HumanTimeout", result.Metadata.ErrorType)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestHumanExecutor_ChoiceRequiresChoices(t *testing.T) {
	node := &blueprint.NodeSpec{ID: "h1", Kind: blueprint.KindHuman, ApprovalType: blueprint.ApprovalChoice}
	exec := &HumanExecutor{Events: nullPublisher{}, Responder: noResponder{}}
	rctx := execctx.New("run-1", nil)

	result := exec.Execute(context.Background(), node, rctx)
	require.False(t, result.Success)
	assert.Equal(t, "ValidationError", result.Metadata.ErrorType)
}

type listingRunner struct {
	calls int
}

func (r *listingRunner) RunSubgraph(ctx context.Context, nodes []blueprint.NodeSpec, initialContext map[string]interface{}) (map[string]interface{}, bool, error) {
	r.calls++
	return map[string]interface{}{"item": initialContext["item"]}, true, nil
}

func TestLoopExecutor_IteratesOverItems(t *testing.T) {
	rctx := execctx.New("run-1", nil)
	rctx.Commit("producer", run.NodeExecutionResult{
		Success: true,
		Output:  map[string]interface{}{"rows": []interface{}{"a", "b", "c"}},
	})

	node := &blueprint.NodeSpec{
		ID:          "loop1",
		Kind:        blueprint.KindLoop,
		ItemsSource: "producer.rows",
		ItemVar:     "item",
		Body:        []blueprint.NodeSpec{{ID: "inner", Kind: blueprint.KindTool, ToolName: "x"}},
	}

	runner := &listingRunner{}
	exec := &LoopExecutor{Runner: runner}
	result := exec.Execute(context.Background(), node, rctx)
	require.True(t, result.Success)
	assert.Equal(t, 3, runner.calls)
	iterations := result.Output["iterations"].([]interface{})
	assert.Len(t, iterations, 3)
}

type branchRunner struct{}

func (branchRunner) RunSubgraph(ctx context.Context, nodes []blueprint.NodeSpec, initialContext map[string]interface{}) (map[string]interface{}, bool, error) {
	return map[string]interface{}{"count": float64(1)}, true, nil
}

func TestParallelExecutor_MergesOutputsOnKeyCollision(t *testing.T) {
	node := &blueprint.NodeSpec{
		ID:           "p1",
		Kind:         blueprint.KindParallel,
		Branches:     [][]blueprint.NodeSpec{{{ID: "a"}}, {{ID: "b"}}},
		WaitStrategy: blueprint.WaitAll,
		MergeOutputs: true,
	}
	exec := &ParallelExecutor{Runner: branchRunner{}}
	rctx := execctx.New("run-1", nil)

	result := exec.Execute(context.Background(), node, rctx)
	require.True(t, result.Success)
	merged, ok := result.Output["count"].([]interface{})
	require.True(t, ok)
	assert.Len(t, merged, 2)
}
