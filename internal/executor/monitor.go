package executor

import (
	"context"
	"time"

	"github.com/iceos/orchestrator/internal/blueprint"
	"github.com/iceos/orchestrator/internal/execctx"
	"github.com/iceos/orchestrator/internal/expr"
	"github.com/iceos/orchestrator/internal/run"
)

// MonitorExecutor implements the "monitor" node contract (spec §4.5). The
// engine reads the returned action_taken to decide whether to pause or
// cancel the run; this executor only evaluates the metric and reports it.
type MonitorExecutor struct {
	Evaluator *expr.Evaluator
}

func (e *MonitorExecutor) Execute(ctx context.Context, node *blueprint.NodeSpec, rctx *execctx.RunContext) run.NodeExecutionResult {
	start := time.Now()

	inputs, err := rctx.ResolveInputs(node)
	if err != nil {
		return failure(node, start, "ExpressionError", err)
	}

	triggered, err := e.Evaluator.Evaluate(node.MetricExpression, rctx.MergedVars(inputs))
	if err != nil {
		return failure(node, start, "ExpressionError", err)
	}

	action := string(node.ActionOnTrigger)
	if !triggered {
		action = ""
	}

	output := map[string]interface{}{
		"checks_performed": 1,
		"triggers_fired":   boolToInt(triggered),
		"action_taken":     action,
	}
	return success(node, start, output, nil)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
