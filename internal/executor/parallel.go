package executor

import (
	"context"
	"time"

	"github.com/iceos/orchestrator/internal/blueprint"
	"github.com/iceos/orchestrator/internal/execctx"
	"github.com/iceos/orchestrator/internal/run"
)

// ParallelExecutor implements the "parallel" node contract (spec §4.5).
type ParallelExecutor struct {
	Runner SubgraphRunner
}

type branchOutcome struct {
	index int
	out   map[string]interface{}
	ok    bool
	err   error
}

func (e *ParallelExecutor) Execute(ctx context.Context, node *blueprint.NodeSpec, rctx *execctx.RunContext) run.NodeExecutionResult {
	start := time.Now()

	branchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan branchOutcome, len(node.Branches))
	for i, branch := range node.Branches {
		go func(idx int, nodes []blueprint.NodeSpec) {
			out, ok, err := e.Runner.RunSubgraph(branchCtx, nodes, nil)
			results <- branchOutcome{index: idx, out: out, ok: ok, err: err}
		}(i, branch)
	}

	collected := make([]branchOutcome, len(node.Branches))
	received := 0
	var firstErr error

	for received < len(node.Branches) {
		outcome := <-results
		collected[outcome.index] = outcome
		received++
		if outcome.err != nil && firstErr == nil {
			firstErr = outcome.err
		}

		if (node.WaitStrategy == blueprint.WaitAny || node.WaitStrategy == blueprint.WaitRace) && outcome.err == nil && outcome.ok {
			cancel() // stop the rest; their results are discarded
			break
		}
	}

	if node.WaitStrategy == blueprint.WaitAll && firstErr != nil {
		return failure(node, start, "ExecutionError", firstErr)
	}

	output := buildParallelOutput(collected, node.MergeOutputs)
	return success(node, start, output, nil)
}

func buildParallelOutput(collected []branchOutcome, merge bool) map[string]interface{} {
	if !merge {
		list := make([]interface{}, 0, len(collected))
		for _, o := range collected {
			if o.out != nil {
				list = append(list, o.out)
			}
		}
		return map[string]interface{}{"branches": list}
	}

	merged := make(map[string]interface{})
	for _, o := range collected {
		for k, v := range o.out {
			if existing, clash := merged[k]; clash {
				if list, isList := existing.([]interface{}); isList {
					merged[k] = append(list, v)
				} else {
					merged[k] = []interface{}{existing, v}
				}
				continue
			}
			merged[k] = v
		}
	}
	return merged
}
