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

// AgentRunner performs the bounded plan->act->observe loop for one agent
// package, using tools restricted to the gate this executor applies before
// handing the invoker over.
type AgentRunner interface {
	Run(ctx context.Context, importPath string, config map[string]interface{}, tools ToolInvoker, maxIterations int) (map[string]interface{}, error)
}

// ToolInvoker is the tool-execution service an agent's loop calls into.
type ToolInvoker interface {
	InvokeTool(ctx context.Context, name string, args map[string]interface{}) (interface{}, error)
}

// AgentExecutor implements the "agent" node contract (spec §4.5).
type AgentExecutor struct {
	Registry *registry.Registry
	Runner   AgentRunner
}

func (e *AgentExecutor) Execute(ctx context.Context, node *blueprint.NodeSpec, rctx *execctx.RunContext) run.NodeExecutionResult {
	start := time.Now()

	inputs, err := rctx.ResolveInputs(node)
	if err != nil {
		return failure(node, start, "ExpressionError", err)
	}

	importPath, err := e.Registry.GetAgentImportPath(node.Package)
	if err != nil {
		return failure(node, start, "RegistryError", err)
	}

	config, err := rctx.RenderTemplates(node.AgentConfig, inputs)
	if err != nil {
		return failure(node, start, "ExecutionError", err)
	}
	configMap, _ := config.(map[string]interface{})

	maxIterations := node.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 1
	}

	gated := &gatedToolInvoker{registry: e.Registry, allowed: allowedSet(node.AllowedTools)}
	out, err := e.Runner.Run(ctx, importPath, configMap, gated, maxIterations)
	if err != nil {
		return failure(node, start, "ExecutionError", err)
	}

	return success(node, start, out, nil)
}

func allowedSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil // nil means unrestricted
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

type gatedToolInvoker struct {
	registry *registry.Registry
	allowed  map[string]bool
}

func (g *gatedToolInvoker) InvokeTool(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	if g.allowed != nil && !g.allowed[name] {
		return nil, fmt.Errorf("agent: tool %q is not in allowed_tools", name)
	}
	obj, err := g.registry.GetToolInstance(name)
	if err != nil {
		return nil, err
	}
	tool, ok := obj.(Tool)
	if !ok {
		return nil, &registry.NotFoundError{EntityClass: "tool", Name: name}
	}
	return tool.Invoke(ctx, args)
}
