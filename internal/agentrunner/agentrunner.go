// Package agentrunner implements the bounded plan->act->observe loop the
// "agent" and "swarm" node kinds delegate to (spec §4.5). Per the agent
// REDESIGN FLAG, there is no dynamic dispatch on an import-path string:
// concrete agents register a Factory under the same name the registry
// knows their import path by, and a generic ReAct loop driven by an
// executor.LLMClient is the default behaviour for any import path without
// a registered factory.
package agentrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/iceos/orchestrator/internal/executor"
)

// Logger matches the narrow contextual-fields interface shared across this
// module's ambient stack.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Factory builds an Agent for one invocation, given the node's
// agent_config. Concrete agent packages implement this instead of being
// dynamically imported by path.
type Factory func(config map[string]interface{}) (Agent, error)

// Agent decides the next action given the running transcript. Returning
// done=true ends the loop with finalOutput.
type Agent interface {
	Act(ctx context.Context, transcript []string) (toolCall *ToolCall, done bool, finalOutput map[string]interface{}, err error)
}

// ToolCall names the next tool invocation an Agent wants to make.
type ToolCall struct {
	Name string
	Args map[string]interface{}
}

// Runner implements executor.AgentRunner. It dispatches to a registered
// Factory by import path when one exists, otherwise falls back to a
// generic LLM-driven ReAct loop.
type Runner struct {
	factories map[string]Factory
	llm       executor.LLMClient
	model     string
	logger    Logger
}

// New builds a Runner backed by defaultClient for agents with no
// registered Factory.
func New(defaultClient executor.LLMClient, defaultModel string, logger Logger) *Runner {
	return &Runner{
		factories: make(map[string]Factory),
		llm:       defaultClient,
		model:     defaultModel,
		logger:    logger,
	}
}

// Register associates a concrete Factory with the import path the agent
// registry resolves a name to.
func (r *Runner) Register(importPath string, factory Factory) {
	r.factories[importPath] = factory
}

// Run implements executor.AgentRunner.
func (r *Runner) Run(ctx context.Context, importPath string, config map[string]interface{}, tools executor.ToolInvoker, maxIterations int) (map[string]interface{}, error) {
	if factory, ok := r.factories[importPath]; ok {
		agent, err := factory(config)
		if err != nil {
			return nil, fmt.Errorf("agentrunner: factory %q: %w", importPath, err)
		}
		return r.loop(ctx, agent, tools, maxIterations)
	}

	if r.llm == nil {
		return nil, fmt.Errorf("agentrunner: no factory registered for %q and no default LLM client configured", importPath)
	}
	goal, _ := config["goal"].(string)
	return r.loop(ctx, &reactAgent{llm: r.llm, model: r.model, goal: goal, config: config}, tools, maxIterations)
}

func (r *Runner) loop(ctx context.Context, agent Agent, tools executor.ToolInvoker, maxIterations int) (map[string]interface{}, error) {
	if maxIterations <= 0 {
		maxIterations = 1
	}

	var transcript []string
	for i := 0; i < maxIterations; i++ {
		call, done, final, err := agent.Act(ctx, transcript)
		if err != nil {
			return nil, fmt.Errorf("agentrunner: iteration %d: %w", i, err)
		}
		if done {
			return final, nil
		}
		if call == nil {
			return nil, fmt.Errorf("agentrunner: iteration %d: neither a tool call nor done", i)
		}

		if r.logger != nil {
			r.logger.Debug("agentrunner: invoking tool", "iteration", i, "tool", call.Name)
		}
		observation, err := tools.InvokeTool(ctx, call.Name, call.Args)
		if err != nil {
			transcript = append(transcript, fmt.Sprintf("tool %s failed: %v", call.Name, err))
			continue
		}
		encoded, _ := json.Marshal(observation)
		transcript = append(transcript, fmt.Sprintf("tool %s -> %s", call.Name, string(encoded)))
	}

	return map[string]interface{}{
		"transcript":      transcript,
		"stopped_reason":  "max_iterations_reached",
		"max_iterations":  maxIterations,
	}, nil
}

// reactAgent is the generic fallback Agent: it asks the LLM, each
// iteration, to either emit a JSON tool call or a final answer.
type reactAgent struct {
	llm    executor.LLMClient
	model  string
	goal   string
	config map[string]interface{}
}

// decision is the strict JSON shape the prompt asks the model to emit.
type decision struct {
	Tool   string                 `json:"tool,omitempty"`
	Args   map[string]interface{} `json:"args,omitempty"`
	Done   bool                   `json:"done,omitempty"`
	Answer map[string]interface{} `json:"answer,omitempty"`
}

func (a *reactAgent) Act(ctx context.Context, transcript []string) (*ToolCall, bool, map[string]interface{}, error) {
	var sb strings.Builder
	sb.WriteString("You are an autonomous agent. Goal: ")
	sb.WriteString(a.goal)
	sb.WriteString("\nRespond with exactly one JSON object: either {\"tool\":name,\"args\":{...}} ")
	sb.WriteString("to call a tool, or {\"done\":true,\"answer\":{...}} to finish.\n")
	for _, step := range transcript {
		sb.WriteString("observation: ")
		sb.WriteString(step)
		sb.WriteString("\n")
	}

	resp, err := a.llm.Complete(ctx, executor.LLMRequest{Model: a.model, Prompt: sb.String()})
	if err != nil {
		return nil, false, nil, err
	}

	var d decision
	if err := json.Unmarshal([]byte(extractJSON(resp.Text)), &d); err != nil {
		return nil, false, nil, fmt.Errorf("agentrunner: model did not return a valid decision: %w", err)
	}
	if d.Done {
		return nil, true, d.Answer, nil
	}
	if d.Tool == "" {
		return nil, false, nil, fmt.Errorf("agentrunner: decision has neither tool nor done")
	}
	return &ToolCall{Name: d.Tool, Args: d.Args}, false, nil, nil
}

// extractJSON trims any surrounding prose a model adds around the JSON
// object it was asked to emit.
func extractJSON(text string) string {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end == -1 || end < start {
		return text
	}
	return text[start : end+1]
}
