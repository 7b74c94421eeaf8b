package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/iceos/orchestrator/internal/blueprint"
	"github.com/iceos/orchestrator/internal/execctx"
)

// RegisterWorkflow registers bp under name so a workflow or recursive node
// elsewhere in the registry can reach it via workflow_ref (spec §4.7,
// "workflow nodes resolve workflow_ref against the registry the same way a
// tool node resolves tool_name"). config overrides passed at resolution
// time are ignored — nested workflows in this engine always run with the
// blueprint exactly as registered.
func (e *Engine) RegisterWorkflow(name string, bp *blueprint.Blueprint) error {
	return e.registry.RegisterWorkflowFactory(name, func(_ map[string]interface{}) (interface{}, error) {
		return bp, nil
	})
}

// RunSubgraph implements executor.SubgraphRunner for the loop and parallel
// executors: their body/branch node lists are scheduled exactly like a top-
// level blueprint — level computation, bounded concurrency, retries, skip
// propagation — but at the same depth. The nested run takes the parent
// run's max_parallel setting from ctx and applies it to its own levels as a
// separate limit; its nodes are not counted against the parent level's
// concurrency limit.
func (e *Engine) RunSubgraph(ctx context.Context, nodes []blueprint.NodeSpec, initialContext map[string]interface{}) (map[string]interface{}, bool, error) {
	bp := &blueprint.Blueprint{Nodes: nodes}
	depth := depthFrom(ctx)
	return e.runNested(ctx, bp, initialContext, depth)
}

// RunWorkflow implements executor.WorkflowRunner for the workflow and
// recursive executors: workflowRef names a blueprint registered via
// registry.RegisterWorkflowFactory. The nested run increments depth by one,
// so depth_ceiling bounds true sub-workflow recursion without being
// tripped by loop/parallel's inline node lists.
func (e *Engine) RunWorkflow(ctx context.Context, workflowRef string, initialContext map[string]interface{}) (map[string]interface{}, bool, error) {
	instance, err := e.registry.GetWorkflowInstance(workflowRef, initialContext)
	if err != nil {
		return nil, false, err
	}
	bp, ok := instance.(*blueprint.Blueprint)
	if !ok {
		return nil, false, fmt.Errorf("engine: workflow_ref %q did not resolve to a *blueprint.Blueprint", workflowRef)
	}

	depth := depthFrom(ctx) + 1
	return e.runNested(ctx, bp, initialContext, depth)
}

func (e *Engine) runNested(ctx context.Context, bp *blueprint.Blueprint, initialContext map[string]interface{}, depth int) (map[string]interface{}, bool, error) {
	cfg := configFrom(ctx, e.defaultConfig)

	runID := runIDFrom(ctx)
	if runID == "" {
		runID = uuid.NewString()
	}
	rctx := execctx.New(runID, initialContext)

	byLevel, maxLevel, err := computeLevels(bp.Nodes)
	if err != nil {
		return nil, false, err
	}

	state := newRunState()
	ctx = withRunID(ctx, runID)
	if err := e.runLevels(ctx, bp, byLevel, maxLevel, rctx, cfg, state, depth); err != nil {
		return aggregateOutput(bp, rctx), false, nil
	}

	success := !state.isAborted() && !state.depthExceeded && state.budgetErr == nil
	return aggregateOutput(bp, rctx), success, nil
}
