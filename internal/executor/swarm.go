package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/iceos/orchestrator/internal/blueprint"
	"github.com/iceos/orchestrator/internal/execctx"
	"github.com/iceos/orchestrator/internal/registry"
	"github.com/iceos/orchestrator/internal/run"
)

// SwarmExecutor implements the "swarm" node contract (spec §4.5). It runs
// each agent once and accepts the consensus/hierarchical/marketplace
// strategies, but all three combine results the same way: every agent's
// output keyed by its role. How an individual agent runs is AgentRunner's
// job, shared with the agent node.
type SwarmExecutor struct {
	Registry *registry.Registry
	Agents   AgentRunner
}

func (e *SwarmExecutor) Execute(ctx context.Context, node *blueprint.NodeSpec, rctx *execctx.RunContext) run.NodeExecutionResult {
	start := time.Now()

	inputs, err := rctx.ResolveInputs(node)
	if err != nil {
		return failure(node, start, "ExpressionError", err)
	}

	perAgent := make(map[string]map[string]interface{}, len(node.Agents))
	for _, agent := range node.Agents {
		importPath, err := e.Registry.GetAgentImportPath(agent.Package)
		if err != nil {
			return failure(node, start, "RegistryError", err)
		}
		config := make(map[string]interface{}, len(agent.Config)+len(inputs))
		for k, v := range inputs {
			config[k] = v
		}
		for k, v := range agent.Config {
			config[k] = v
		}
		out, err := e.Agents.Run(ctx, importPath, config, noToolAccess{}, 1)
		if err != nil {
			return failure(node, start, "ExecutionError", err)
		}
		perAgent[agent.Role] = out
	}

	output, err := combineSwarm(node.CoordinationStrategy, perAgent)
	if err != nil {
		return failure(node, start, "ExecutionError", err)
	}
	return success(node, start, output, nil)
}

func combineSwarm(strategy blueprint.CoordinationStrategy, perAgent map[string]map[string]interface{}) (map[string]interface{}, error) {
	switch strategy {
	case blueprint.CoordinationHierarchical:
		// the first-declared role (by map iteration is unordered, so pick
		// deterministically isn't possible here without an explicit lead
		// marker; surface all results and let the caller decide) — record
		// every participant's output, tagged by role.
		return map[string]interface{}{"strategy": string(strategy), "results": perAgent}, nil
	case blueprint.CoordinationMarketplace, blueprint.CoordinationConsensus, "":
		return map[string]interface{}{"strategy": string(strategy), "results": perAgent}, nil
	default:
		return nil, fmt.Errorf("swarm: unknown coordination_strategy %q", strategy)
	}
}
