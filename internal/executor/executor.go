// Package executor implements the Node Executor contracts (C5): one
// implementation per blueprint.Kind, each converting a NodeSpec and its
// resolved inputs into a run.NodeExecutionResult.
package executor

import (
	"context"
	"time"

	"github.com/iceos/orchestrator/internal/blueprint"
	"github.com/iceos/orchestrator/internal/execctx"
	"github.com/iceos/orchestrator/internal/run"
)

// Executor is the contract every node kind implements: execute(workflow,
// node_cfg, ctx) -> NodeExecutionResult.
type Executor interface {
	Execute(ctx context.Context, node *blueprint.NodeSpec, rctx *execctx.RunContext) run.NodeExecutionResult
}

// SubgraphRunner lets executors that contain nested node lists (loop body,
// parallel branches, workflow/recursive sub-runs) invoke the engine's
// scheduler without the executor package importing the engine package,
// which imports this one.
type SubgraphRunner interface {
	RunSubgraph(ctx context.Context, nodes []blueprint.NodeSpec, initialContext map[string]interface{}) (map[string]interface{}, bool, error)
}

// newMetadata starts a NodeMetadata record; callers fill EndTime/ErrorType
// and compute Duration once the executor returns.
func newMetadata(node *blueprint.NodeSpec, start time.Time) run.NodeMetadata {
	return run.NodeMetadata{
		NodeID:    node.ID,
		Kind:      string(node.Kind),
		StartTime: start,
		Provider:  node.Provider,
	}
}

func finish(meta run.NodeMetadata, errType string) run.NodeMetadata {
	meta.EndTime = time.Now()
	meta.Duration = meta.EndTime.Sub(meta.StartTime)
	meta.ErrorType = errType
	return meta
}

func failure(node *blueprint.NodeSpec, start time.Time, errType string, err error) run.NodeExecutionResult {
	return run.NodeExecutionResult{
		Success:  false,
		Error:    err.Error(),
		Metadata: finish(newMetadata(node, start), errType),
	}
}

func success(node *blueprint.NodeSpec, start time.Time, output map[string]interface{}, usage *run.UsageMetadata) run.NodeExecutionResult {
	return run.NodeExecutionResult{
		Success:  true,
		Output:   output,
		Metadata: finish(newMetadata(node, start), ""),
		Usage:    usage,
	}
}
