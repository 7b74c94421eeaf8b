package executor

import (
	"context"
	"time"

	"github.com/iceos/orchestrator/internal/blueprint"
	"github.com/iceos/orchestrator/internal/execctx"
	"github.com/iceos/orchestrator/internal/expr"
	"github.com/iceos/orchestrator/internal/registry"
	"github.com/iceos/orchestrator/internal/run"
)

const defaultRecursiveMaxIterations = 10

// RecursiveExecutor implements the "recursive" node contract (spec §4.5).
// Exactly one of AgentRunner/WorkflowRunner is consulted per node, chosen
// by which of agent_package/workflow_ref the node declares — the validator
// already rejects nodes that declare both or neither.
type RecursiveExecutor struct {
	Registry  *registry.Registry
	Evaluator *expr.Evaluator
	Agents    AgentRunner
	Workflows WorkflowRunner
}

func (e *RecursiveExecutor) Execute(ctx context.Context, node *blueprint.NodeSpec, rctx *execctx.RunContext) run.NodeExecutionResult {
	start := time.Now()

	inputs, err := rctx.ResolveInputs(node)
	if err != nil {
		return failure(node, start, "ExpressionError", err)
	}

	maxIterations := node.RecursiveMaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultRecursiveMaxIterations
	}

	iterationContext := make(map[string]interface{}, len(inputs)+1)
	for k, v := range inputs {
		iterationContext[k] = v
	}

	var lastOutput map[string]interface{}
	converged := false
	reason := "max_iterations_reached"
	iteration := 0

	for ; iteration < maxIterations; iteration++ {
		iterationContext["_recursive_iteration"] = iteration

		out, err := e.runOneIteration(ctx, node, iterationContext)
		if err != nil {
			return failure(node, start, "ExecutionError", err)
		}
		lastOutput = out

		if node.PreserveContext && node.ContextKey != "" {
			iterationContext[node.ContextKey] = out
		}

		holds, err := e.Evaluator.Evaluate(node.ConvergenceCondition, rctx.MergedVars(mergeForConvergence(iterationContext, out)))
		if err != nil {
			return failure(node, start, "ExpressionError", err)
		}
		if holds {
			converged = true
			reason = "condition_met"
			iteration++
			break
		}
	}

	output := make(map[string]interface{}, len(lastOutput)+4)
	for k, v := range lastOutput {
		output[k] = v
	}
	output["converged"] = converged
	output["reason"] = reason
	output["_recursive_iteration"] = iteration
	output["_can_recurse"] = iteration < maxIterations
	output["_recursive_node_id"] = node.ID

	return success(node, start, output, nil)
}

func (e *RecursiveExecutor) runOneIteration(ctx context.Context, node *blueprint.NodeSpec, iterationContext map[string]interface{}) (map[string]interface{}, error) {
	if node.AgentPackage != "" {
		importPath, err := e.Registry.GetAgentImportPath(node.AgentPackage)
		if err != nil {
			return nil, err
		}
		return e.Agents.Run(ctx, importPath, iterationContext, noToolAccess{}, 1)
	}
	out, _, err := e.Workflows.RunWorkflow(ctx, node.WorkflowRef, iterationContext)
	return out, err
}

func mergeForConvergence(base map[string]interface{}, out map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(base)+1)
	for k, v := range base {
		merged[k] = v
	}
	merged["output"] = out
	return merged
}

type noToolAccess struct{}

func (noToolAccess) InvokeTool(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	return nil, &registry.NotFoundError{EntityClass: "tool", Name: name}
}
