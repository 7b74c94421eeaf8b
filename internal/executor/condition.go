package executor

import (
	"context"
	"time"

	"github.com/iceos/orchestrator/internal/blueprint"
	"github.com/iceos/orchestrator/internal/execctx"
	"github.com/iceos/orchestrator/internal/expr"
	"github.com/iceos/orchestrator/internal/run"
)

// ConditionExecutor implements the "condition" node contract (spec §4.5).
// It only evaluates the expression and reports true_branch/false_branch
// decisions; propagating those decisions into the engine's skip table is
// the engine's job, not this executor's.
type ConditionExecutor struct {
	Evaluator *expr.Evaluator
}

func (e *ConditionExecutor) Execute(ctx context.Context, node *blueprint.NodeSpec, rctx *execctx.RunContext) run.NodeExecutionResult {
	start := time.Now()

	inputs, err := rctx.ResolveInputs(node)
	if err != nil {
		return failure(node, start, "ExpressionError", err)
	}

	result, err := e.Evaluator.Evaluate(node.Expression, rctx.MergedVars(inputs))
	if err != nil {
		return failure(node, start, "ExpressionError", err)
	}

	return success(node, start, map[string]interface{}{"result": result}, nil)
}

// BranchDecision reports which branch a completed condition node selected,
// for the engine's skip-propagation table.
func BranchDecision(node *blueprint.NodeSpec, result run.NodeExecutionResult) (enabled, skipped []string) {
	if !result.Success {
		return nil, append(append([]string{}, node.TrueBranch...), node.FalseBranch...)
	}
	taken, _ := result.Output["result"].(bool)
	if taken {
		return node.TrueBranch, node.FalseBranch
	}
	return node.FalseBranch, node.TrueBranch
}
