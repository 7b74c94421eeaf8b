package executor

import (
	"context"
	"time"

	"github.com/iceos/orchestrator/internal/blueprint"
	"github.com/iceos/orchestrator/internal/execctx"
	"github.com/iceos/orchestrator/internal/registry"
	"github.com/iceos/orchestrator/internal/run"
	"github.com/iceos/orchestrator/internal/sandbox"
)

// Tool is the contract a registered tool instance must satisfy. Concrete
// tool implementations (HTTP callers, shell wrappers, vector search, …) are
// out of scope here; this package only invokes whatever the registry hands
// back through this interface.
type Tool interface {
	Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// ToolExecutor implements the "tool" node contract (spec §4.5).
type ToolExecutor struct {
	Registry *registry.Registry
}

func (e *ToolExecutor) Execute(ctx context.Context, node *blueprint.NodeSpec, rctx *execctx.RunContext) run.NodeExecutionResult {
	start := time.Now()

	inputs, err := rctx.ResolveInputs(node)
	if err != nil {
		return failure(node, start, "ExpressionError", err)
	}

	rendered, err := rctx.RenderTemplates(node.ToolArgs, inputs)
	if err != nil {
		return failure(node, start, "ExecutionError", err)
	}
	args, _ := rendered.(map[string]interface{})
	if args == nil {
		args = map[string]interface{}{}
	}
	for k, v := range inputs {
		if _, exists := args[k]; !exists {
			args[k] = v
		}
	}

	obj, err := e.Registry.GetToolInstance(node.ToolName)
	if err != nil {
		return failure(node, start, "RegistryError", err)
	}
	tool, ok := obj.(Tool)
	if !ok {
		return failure(node, start, "RegistryError", &registry.NotFoundError{EntityClass: "tool", Name: node.ToolName})
	}

	out, err := sandbox.Run(ctx, node.TimeoutSeconds, func(sctx context.Context) (map[string]interface{}, error) {
		result, err := tool.Invoke(sctx, args)
		if err != nil {
			return nil, err
		}
		if m, ok := result.(map[string]interface{}); ok {
			return m, nil
		}
		return map[string]interface{}{"result": result}, nil
	})
	if err != nil {
		errType := "ExecutionError"
		if _, ok := err.(*sandbox.TimeoutError); ok {
			errType = "Timeout"
		}
		return failure(node, start, errType, err)
	}

	return success(node, start, out, nil)
}
