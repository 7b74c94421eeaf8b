package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/iceos/orchestrator/internal/blueprint"
	"github.com/iceos/orchestrator/internal/execctx"
	"github.com/iceos/orchestrator/internal/run"
)

// LoopExecutor implements the "loop" node contract (spec §4.5).
type LoopExecutor struct {
	Runner SubgraphRunner
}

func (e *LoopExecutor) Execute(ctx context.Context, node *blueprint.NodeSpec, rctx *execctx.RunContext) run.NodeExecutionResult {
	start := time.Now()

	itemsRaw, err := rctx.ResolvePath(node.ItemsSource)
	if err != nil {
		return failure(node, start, "ExpressionError", err)
	}
	items, ok := itemsRaw.([]interface{})
	if !ok {
		return failure(node, start, "ExpressionError", fmt.Errorf("loop: items_source %q did not resolve to a list", node.ItemsSource))
	}

	maxIterations := node.LoopMaxIterations
	if maxIterations <= 0 || maxIterations > len(items) {
		maxIterations = len(items)
	}

	var iterations []interface{}
	for i := 0; i < maxIterations; i++ {
		initial := map[string]interface{}{node.ItemVar: items[i]}
		out, ok, err := e.Runner.RunSubgraph(ctx, node.Body, initial)
		if err != nil {
			return failure(node, start, "ExecutionError", fmt.Errorf("loop: iteration %d: %w", i, err))
		}
		iterations = append(iterations, out)
		if !ok {
			break
		}
	}

	return success(node, start, map[string]interface{}{"iterations": iterations}, nil)
}
