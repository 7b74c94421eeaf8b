package engine

import (
	"context"
	"math"
	"time"

	"github.com/iceos/orchestrator/internal/blueprint"
	"github.com/iceos/orchestrator/internal/execctx"
	"github.com/iceos/orchestrator/internal/executor"
	"github.com/iceos/orchestrator/internal/run"
)

// retryable reports whether result is eligible for another attempt, per the
// error taxonomy in spec §7 and the retry-count bound in spec §8
// ("a node with retries=k attempts at most k+1 executions").
func retryable(node *blueprint.NodeSpec, result run.NodeExecutionResult, attempt int) bool {
	if attempt >= node.Retries {
		return false
	}
	switch result.Metadata.ErrorType {
	case "ExecutionError":
		return true
	case "Timeout":
		return retryableTimeoutKind(node.Kind)
	default:
		// ValidationError, RegistryError, ExpressionError, SandboxViolation,
		// HumanTimeout, BudgetExceeded, DepthExceeded are never retried.
		return false
	}
}

// retryableTimeoutKind implements "Timeout ... subject to retries only if
// ... the node-kind opts-in (tool/llm/agent yes; human no)" (spec §7).
func retryableTimeoutKind(kind blueprint.Kind) bool {
	switch kind {
	case blueprint.KindTool, blueprint.KindLLM, blueprint.KindAgent:
		return true
	default:
		return false
	}
}

func backoffDelay(node *blueprint.NodeSpec, attempt int) time.Duration {
	seconds := node.BackoffSeconds * math.Pow(2, float64(attempt))
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// dispatchNode runs one node to completion, including retries with
// backoff, honoring node.timeout_seconds as a deadline and classifying a
// deadline breach as Timeout when the executing node kind opts in to
// Timeout-retries (spec §5 "Timeouts", §7). depth and cfg are stamped onto
// the node's context so a nested RunSubgraph/RunWorkflow call triggered
// synchronously from inside Execute (loop/parallel/workflow/recursive) can
// recover them without widening the executor.SubgraphRunner/WorkflowRunner
// interfaces.
func (e *Engine) dispatchNode(ctx context.Context, node *blueprint.NodeSpec, rctx *execctx.RunContext, cfg Config, depth int) run.NodeExecutionResult {
	ex, lookupErr := e.lookupExecutor(node.Kind)
	if lookupErr != nil {
		return run.NodeExecutionResult{
			Success: false,
			Error:   lookupErr.Error(),
			Metadata: run.NodeMetadata{
				NodeID: node.ID, Kind: string(node.Kind),
				StartTime: time.Now(), EndTime: time.Now(),
				ErrorType: "RegistryError",
			},
		}
	}

	var result run.NodeExecutionResult
	for attempt := 0; ; attempt++ {
		nodeCtx := ctx
		var cancel context.CancelFunc
		if node.TimeoutSeconds > 0 {
			nodeCtx, cancel = context.WithTimeout(ctx, time.Duration(node.TimeoutSeconds*float64(time.Second)))
		}
		nodeCtx = withRunID(nodeCtx, rctx.RunID)
		nodeCtx = withDepth(nodeCtx, depth)
		nodeCtx = withConfig(nodeCtx, cfg)

		e.emitNode(rctx.RunID, run.EventNodeStarted, node.ID, map[string]interface{}{"attempt": attempt})
		result = ex.Execute(nodeCtx, node, rctx)

		if !result.Success && nodeCtx.Err() == context.DeadlineExceeded && retryableTimeoutKind(node.Kind) {
			result.Metadata.ErrorType = "Timeout"
		}
		if cancel != nil {
			cancel()
		}

		if result.Success || !retryable(node, result, attempt) {
			break
		}

		delay := backoffDelay(node, attempt)
		e.emitNode(rctx.RunID, run.EventNodeRetrying, node.ID, map[string]interface{}{
			"attempt":       attempt,
			"error_type":    result.Metadata.ErrorType,
			"delay_seconds": delay.Seconds(),
		})

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return result
		}
	}

	return result
}

// lookupExecutor fetches and type-asserts the registered executor for kind,
// per the registry-mediated dispatch contract (spec §4.1).
func (e *Engine) lookupExecutor(kind blueprint.Kind) (executor.Executor, error) {
	raw, err := e.registry.GetExecutor(kind)
	if err != nil {
		return nil, err
	}
	ex, ok := raw.(executor.Executor)
	if !ok {
		return nil, &executorTypeError{Kind: kind}
	}
	return ex, nil
}

type executorTypeError struct {
	Kind blueprint.Kind
}

func (e *executorTypeError) Error() string {
	return "engine: registered executor for kind " + string(e.Kind) + " does not implement executor.Executor"
}
