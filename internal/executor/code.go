package executor

import (
	"context"
	"time"

	"github.com/iceos/orchestrator/internal/blueprint"
	"github.com/iceos/orchestrator/internal/execctx"
	"github.com/iceos/orchestrator/internal/run"
	"github.com/iceos/orchestrator/internal/sandbox"
)

// CodeExecutor implements the "code" node contract (spec §4.5). Sandboxing
// is never optional here: NodeSpec.ApplyDefaults forces Sandbox=true for
// every code node before it reaches this executor.
type CodeExecutor struct {
	Runner      sandbox.CodeRunner
	AllowedList map[string]bool
}

func (e *CodeExecutor) Execute(ctx context.Context, node *blueprint.NodeSpec, rctx *execctx.RunContext) run.NodeExecutionResult {
	start := time.Now()

	if err := sandbox.CheckImports(node.Imports, e.AllowedList); err != nil {
		return failure(node, start, "SandboxViolation", err)
	}

	inputs, err := rctx.ResolveInputs(node)
	if err != nil {
		return failure(node, start, "ExpressionError", err)
	}

	out, err := sandbox.Run(ctx, node.TimeoutSeconds, func(sctx context.Context) (map[string]interface{}, error) {
		result, err := e.Runner.RunCode(sctx, string(node.Language), node.Code, inputs)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"wasm_return_code": result.WasmReturnCode,
			"result":           result.Result,
		}, nil
	})
	if err != nil {
		errType := "ExecutionError"
		if _, ok := err.(*sandbox.TimeoutError); ok {
			errType = "Timeout"
		}
		if _, ok := err.(*sandbox.ViolationError); ok {
			errType = "SandboxViolation"
		}
		return failure(node, start, errType, err)
	}

	return success(node, start, out, nil)
}
