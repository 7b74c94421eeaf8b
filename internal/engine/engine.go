// Package engine implements the Workflow Engine (C6): level computation,
// bounded-concurrency dispatch, retries, skip propagation, failure
// policies, depth/budget guards, and the run.Event lifecycle that drives
// everything else in a run (spec §4.7).
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iceos/orchestrator/internal/blueprint"
	"github.com/iceos/orchestrator/internal/execctx"
	"github.com/iceos/orchestrator/internal/executor"
	"github.com/iceos/orchestrator/internal/expr"
	"github.com/iceos/orchestrator/internal/registry"
	"github.com/iceos/orchestrator/internal/run"
	"github.com/iceos/orchestrator/internal/sandbox"
	"golang.org/x/sync/errgroup"
)

// Logger matches the narrow contextual-fields interface shared across
// internal/eventbus and internal/ratelimit.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Dependencies bundles the pluggable runtime ports the 12 node executors
// need. Agent/LLM/Code/Human wiring is intentionally left to the binary
// that constructs the Engine (cmd/mcp) — the engine only knows the
// contracts, not concrete providers.
type Dependencies struct {
	Agents          executor.AgentRunner
	LLMClient       executor.LLMClient
	DefaultLLMModel string
	CodeRunner      sandbox.CodeRunner
	AllowedImports  map[string]bool
	HumanResponder  executor.HumanResponder
	Evaluator       *expr.Evaluator
}

// Engine schedules Blueprint runs against the nodes registered in a
// registry.Registry, emitting lifecycle events to a Bus.
type Engine struct {
	registry      *registry.Registry
	bus           Bus
	logger        Logger
	defaultConfig Config
}

// New builds an Engine and registers all 12 built-in node executors into
// reg via RegisterExecutor (spec §4.1), wiring loop/parallel/workflow/
// recursive back to the engine itself as their SubgraphRunner/
// WorkflowRunner.
func New(reg *registry.Registry, bus Bus, deps Dependencies, logger Logger, defaultConfig Config) (*Engine, error) {
	e := &Engine{
		registry:      reg,
		bus:           bus,
		logger:        logger,
		defaultConfig: defaultConfig.withDefaults(),
	}
	if err := e.registerExecutors(deps); err != nil {
		return nil, fmt.Errorf("engine: register executors: %w", err)
	}
	return e, nil
}

func (e *Engine) registerExecutors(deps Dependencies) error {
	evaluator := deps.Evaluator
	if evaluator == nil {
		evaluator = expr.NewEvaluator()
	}

	entries := []struct {
		kind blueprint.Kind
		ex   executor.Executor
	}{
		{blueprint.KindTool, &executor.ToolExecutor{Registry: e.registry}},
		{blueprint.KindLLM, &executor.LLMExecutor{Registry: e.registry, DefaultClient: deps.LLMClient, DefaultModel: deps.DefaultLLMModel}},
		{blueprint.KindAgent, &executor.AgentExecutor{Registry: e.registry, Runner: deps.Agents}},
		{blueprint.KindCondition, &executor.ConditionExecutor{Evaluator: evaluator}},
		{blueprint.KindLoop, &executor.LoopExecutor{Runner: e}},
		{blueprint.KindParallel, &executor.ParallelExecutor{Runner: e}},
		{blueprint.KindWorkflow, &executor.WorkflowExecutor{Runner: e}},
		{blueprint.KindRecursive, &executor.RecursiveExecutor{Registry: e.registry, Evaluator: evaluator, Agents: deps.Agents, Workflows: e}},
		{blueprint.KindCode, &executor.CodeExecutor{Runner: deps.CodeRunner, AllowedList: deps.AllowedImports}},
		{blueprint.KindHuman, &executor.HumanExecutor{Events: &eventPublisher{engine: e}, Responder: deps.HumanResponder}},
		{blueprint.KindMonitor, &executor.MonitorExecutor{Evaluator: evaluator}},
		{blueprint.KindSwarm, &executor.SwarmExecutor{Registry: e.registry, Agents: deps.Agents}},
	}

	for _, entry := range entries {
		if err := e.registry.RegisterExecutor(entry.kind, entry.ex); err != nil {
			return err
		}
	}
	return nil
}

// Report is the final outcome of a top-level run: the persisted-shape Run
// record plus the complete per-node result list (spec §7: "Final results
// always include a per-node result list and an aggregated run-level
// success/error/output").
type Report struct {
	Run         *run.Run
	NodeResults map[string]run.NodeExecutionResult
}

// RunBlueprint executes bp from the top (depth 0), assigning a fresh run
// id, and returns the full report. A non-nil error here means the run
// could not even be attempted (e.g. a cyclic dependency graph) — runtime
// node failures are reported inside Report, not as a Go error.
func (e *Engine) RunBlueprint(ctx context.Context, bp *blueprint.Blueprint, initialContext map[string]interface{}, cfg Config) (*Report, error) {
	return e.RunBlueprintWithID(ctx, uuid.NewString(), bp, initialContext, cfg)
}

// RunBlueprintWithID is RunBlueprint with a caller-assigned run id, so a
// control plane can hand the id back to a submitter before the run
// finishes (spec §6.1: POST /runs returns run_id synchronously, the run
// itself proceeds in the background).
func (e *Engine) RunBlueprintWithID(ctx context.Context, runID string, bp *blueprint.Blueprint, initialContext map[string]interface{}, cfg Config) (*Report, error) {
	rctx := execctx.New(runID, initialContext)
	cfg = cfg.withDefaults()

	byLevel, maxLevel, err := computeLevels(bp.Nodes)
	if err != nil {
		return nil, err
	}

	startedAt := time.Now()
	e.emit(runID, run.EventWorkflowStarted, map[string]interface{}{
		"blueprint_id": bp.BlueprintID,
		"node_count":   len(bp.Nodes),
		"level_count":  maxLevel,
	})

	state := newRunState()
	runErr := e.runLevels(ctx, bp, byLevel, maxLevel, rctx, cfg, state, 0)

	finishedAt := time.Now()
	success := runErr == nil && !state.isAborted() && !state.depthExceeded && state.budgetErr == nil

	result := &run.Run{
		RunID:       runID,
		BlueprintID: bp.BlueprintID,
		StartedAt:   startedAt,
		FinishedAt:  &finishedAt,
		Success:     success,
		Output:      aggregateOutput(bp, rctx),
	}
	if success {
		result.Status = run.StatusCompleted
	} else {
		result.Status = run.StatusFailed
		result.Error = firstError(runErr, state).Error()
	}
	tokens, cost, apiCalls := state.usageTotals()
	result.CostMeta = run.CostMeta{Tokens: tokens, CostUSD: cost, APICalls: apiCalls}

	if success {
		e.emit(runID, run.EventWorkflowCompleted, map[string]interface{}{"output": result.Output})
	} else {
		e.emit(runID, run.EventWorkflowFailed, map[string]interface{}{"error": result.Error})
	}

	return &Report{Run: result, NodeResults: nodeResults(bp, rctx)}, nil
}

func firstError(runErr error, state *runState) error {
	if runErr != nil {
		return runErr
	}
	if state.isAborted() {
		return &abortedError{NodeID: state.abortedBy}
	}
	if state.depthExceeded {
		return state.budgetErr
	}
	if state.budgetErr != nil {
		return state.budgetErr
	}
	return fmt.Errorf("engine: run failed for an unknown reason")
}

// runLevels drives the per-level loop: dispatch, settle, guard, repeat
// (spec §4.7 steps 2-2e). depth is the sub-workflow recursion depth this
// invocation runs at, used only by the depth guard.
func (e *Engine) runLevels(ctx context.Context, bp *blueprint.Blueprint, byLevel map[int][]string, maxLevel int, rctx *execctx.RunContext, cfg Config, state *runState, depth int) error {
	for level := 1; level <= maxLevel; level++ {
		ids := byLevel[level]
		if len(ids) == 0 {
			continue
		}

		if err := e.runLevel(ctx, bp, level, ids, rctx, cfg, state, depth); err != nil {
			return err
		}
		if state.isAborted() {
			return nil
		}

		if cfg.DepthCeiling > 0 && depth+level >= cfg.DepthCeiling {
			state.depthExceeded = true
			state.budgetErr = &DepthExceededError{Level: depth + level, Ceiling: cfg.DepthCeiling}
			return nil
		}
		if guardErr := checkBudget(cfg, state); guardErr != nil {
			if cfg.BudgetFailsClosed {
				state.budgetErr = guardErr
				return nil
			}
			if e.logger != nil {
				e.logger.Warn("engine: budget guard tripped but fail-open is active", "error", guardErr.Error())
			}
		}
	}
	return nil
}

func checkBudget(cfg Config, state *runState) error {
	tokens, cost, _ := state.usageTotals()
	if cfg.OrgBudgetUSD > 0 && cost > cfg.OrgBudgetUSD {
		return &BudgetExceededError{Reason: fmt.Sprintf("cumulative cost %.4f exceeds org_budget_usd %.4f", cost, cfg.OrgBudgetUSD)}
	}
	if cfg.MaxTokens > 0 && tokens > cfg.MaxTokens {
		return &BudgetExceededError{Reason: fmt.Sprintf("cumulative tokens %d exceeds max_tokens %d", tokens, cfg.MaxTokens)}
	}
	return nil
}

// runLevel dispatches one level's active nodes under a bounded-concurrency
// errgroup (spec §4.7 step 2c; §5 "bounded by max_parallel").
func (e *Engine) runLevel(ctx context.Context, bp *blueprint.Blueprint, level int, ids []string, rctx *execctx.RunContext, cfg Config, state *runState, depth int) error {
	e.emitLevel(rctx.RunID, run.EventLevelStarted, level)

	active, skippedNow := e.partitionActive(bp, ids, cfg.FailurePolicy, state)
	for _, id := range skippedNow {
		state.markSkipped(id)
		e.emitNode(rctx.RunID, run.EventNodeSkipped, id, nil)
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.MaxParallel > 0 {
		g.SetLimit(cfg.MaxParallel)
	}

	for _, id := range active {
		id := id
		node, _ := bp.NodeByID(id)
		g.Go(func() error {
			return e.runNode(gctx, node, rctx, cfg, state, depth)
		})
	}

	err := g.Wait()
	e.emitLevel(rctx.RunID, run.EventLevelCompleted, level)
	return err
}

func (e *Engine) runNode(ctx context.Context, node *blueprint.NodeSpec, rctx *execctx.RunContext, cfg Config, state *runState, depth int) error {
	e.emitNode(rctx.RunID, run.EventNodeQueued, node.ID, nil)

	result := e.dispatchNode(ctx, node, rctx, cfg, depth)
	rctx.Commit(node.ID, result)
	state.recordResult(node.ID, result)

	if node.Kind == blueprint.KindCondition {
		_, skipped := executor.BranchDecision(node, result)
		for _, id := range skipped {
			state.markSkipped(id)
		}
	}
	if node.Kind == blueprint.KindMonitor && result.Success {
		if action, _ := result.Output["action_taken"].(string); action == string(blueprint.MonitorAbort) || action == string(blueprint.MonitorPause) {
			state.triggerAbort(node.ID)
		}
	}

	if result.Success {
		e.emitNode(rctx.RunID, run.EventNodeCompleted, node.ID, map[string]interface{}{
			"duration_ms": result.Metadata.Duration.Milliseconds(),
		})
	} else {
		e.emitNode(rctx.RunID, run.EventNodeFailed, node.ID, map[string]interface{}{
			"error":      result.Error,
			"error_type": result.Metadata.ErrorType,
		})
	}

	if !result.Success && cfg.FailurePolicy == FailureHalt {
		return &haltError{NodeID: node.ID, Reason: result.Error}
	}
	return nil
}

func nodeResults(bp *blueprint.Blueprint, rctx *execctx.RunContext) map[string]run.NodeExecutionResult {
	out := make(map[string]run.NodeExecutionResult, len(bp.Nodes))
	for _, n := range bp.Nodes {
		if r, ok := rctx.Result(n.ID); ok {
			out[n.ID] = r
		}
	}
	return out
}

// aggregateOutput collects the output of every sink node (a node no other
// node in bp depends on, directly or via a condition branch) into the
// run's final output map. A single sink's output map is returned verbatim,
// so exposed_outputs dotted-path lookups on a sub-workflow's result behave
// the way a single-return-value function would; multiple sinks are merged
// under their node id to avoid silently dropping any of them.
func aggregateOutput(bp *blueprint.Blueprint, rctx *execctx.RunContext) map[string]interface{} {
	hasDependent := make(map[string]bool, len(bp.Nodes))
	for _, n := range bp.Nodes {
		for _, dep := range n.Dependencies {
			hasDependent[dep] = true
		}
		if n.Kind == blueprint.KindCondition {
			for _, t := range n.TrueBranch {
				hasDependent[t] = true
			}
			for _, t := range n.FalseBranch {
				hasDependent[t] = true
			}
		}
	}

	var sinks []string
	for _, n := range bp.Nodes {
		if !hasDependent[n.ID] {
			sinks = append(sinks, n.ID)
		}
	}

	if len(sinks) == 1 {
		if r, ok := rctx.Result(sinks[0]); ok {
			return r.Output
		}
		return nil
	}

	merged := make(map[string]interface{}, len(sinks))
	for _, id := range sinks {
		if r, ok := rctx.Result(id); ok {
			merged[id] = r.Output
		}
	}
	return merged
}
