package executor

import (
	"context"
	"time"

	"github.com/iceos/orchestrator/internal/blueprint"
	"github.com/iceos/orchestrator/internal/execctx"
	"github.com/iceos/orchestrator/internal/registry"
	"github.com/iceos/orchestrator/internal/run"
)

// WorkflowRunner looks up a registered sub-workflow's nodes and runs them as
// a child invocation of the engine.
type WorkflowRunner interface {
	RunWorkflow(ctx context.Context, workflowRef string, initialContext map[string]interface{}) (map[string]interface{}, bool, error)
}

// WorkflowExecutor implements the "workflow" node contract (spec §4.5).
type WorkflowExecutor struct {
	Runner WorkflowRunner
}

func (e *WorkflowExecutor) Execute(ctx context.Context, node *blueprint.NodeSpec, rctx *execctx.RunContext) run.NodeExecutionResult {
	start := time.Now()

	if node.WorkflowRef == "" {
		return failure(node, start, "RegistryError", &registry.NotFoundError{EntityClass: "workflow", Name: node.WorkflowRef})
	}

	inputs, err := rctx.ResolveInputs(node)
	if err != nil {
		return failure(node, start, "ExpressionError", err)
	}

	rendered, err := rctx.RenderTemplates(node.ConfigOverrides, inputs)
	if err != nil {
		return failure(node, start, "ExecutionError", err)
	}
	overrides, _ := rendered.(map[string]interface{})
	for k, v := range inputs {
		if _, exists := overrides[k]; !exists {
			if overrides == nil {
				overrides = map[string]interface{}{}
			}
			overrides[k] = v
		}
	}

	out, _, err := e.Runner.RunWorkflow(ctx, node.WorkflowRef, overrides)
	if err != nil {
		return failure(node, start, "ExecutionError", err)
	}

	if len(node.ExposedOutputs) == 0 {
		return success(node, start, out, nil)
	}

	exposed := make(map[string]interface{}, len(node.ExposedOutputs))
	for external, internalPath := range node.ExposedOutputs {
		value, err := resolveNested(out, internalPath)
		if err != nil {
			return failure(node, start, "ExpressionError", err)
		}
		exposed[external] = value
	}
	return success(node, start, exposed, nil)
}
