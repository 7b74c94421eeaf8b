package executor

import (
	"context"
	"time"

	"github.com/iceos/orchestrator/internal/blueprint"
	"github.com/iceos/orchestrator/internal/execctx"
	"github.com/iceos/orchestrator/internal/registry"
	"github.com/iceos/orchestrator/internal/run"
)

// LLMRequest is handed to an LLMClient after prompt/model resolution.
type LLMRequest struct {
	Provider    string
	Model       string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// LLMResponse is what an LLMClient returns for a completion call.
type LLMResponse struct {
	Text  string
	Usage *run.UsageMetadata
}

// LLMClient is the provider-agnostic completion contract; concrete
// provider wiring (OpenAI, Anthropic, …) is out of scope here.
type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}

// LLMExecutor implements the "llm" node contract (spec §4.5).
type LLMExecutor struct {
	Registry      *registry.Registry
	DefaultClient LLMClient
	DefaultModel  string
}

func (e *LLMExecutor) Execute(ctx context.Context, node *blueprint.NodeSpec, rctx *execctx.RunContext) run.NodeExecutionResult {
	start := time.Now()

	inputs, err := rctx.ResolveInputs(node)
	if err != nil {
		return failure(node, start, "ExpressionError", err)
	}

	prompt, err := rctx.RenderStrict(node.Prompt, inputs)
	if err != nil {
		return failure(node, start, "ExpressionError", err)
	}

	model := e.resolveModel(node)
	provider := node.LLMConfig.Provider
	if provider == "" {
		provider = node.Provider
	}

	client, err := e.resolveClient(node)
	if err != nil {
		return failure(node, start, "RegistryError", err)
	}

	resp, err := client.Complete(ctx, LLMRequest{
		Provider:    provider,
		Model:       model,
		Prompt:      prompt,
		Temperature: node.LLMConfig.Temperature,
		MaxTokens:   node.LLMConfig.MaxTokens,
	})
	if err != nil {
		return failure(node, start, "ExecutionError", err)
	}

	output := map[string]interface{}{
		"response": resp.Text,
		"prompt":   prompt,
		"model":    model,
	}
	if resp.Usage != nil {
		output["usage"] = resp.Usage
	}
	if _, hasText := node.OutputSchema["text"]; hasText || node.OutputSchema == nil {
		output["text"] = resp.Text
	}

	result := success(node, start, output, resp.Usage)
	result.Metadata.Provider = provider
	return result
}

func (e *LLMExecutor) resolveModel(node *blueprint.NodeSpec) string {
	if node.LLMConfig.Model != "" {
		return node.LLMConfig.Model
	}
	if node.Model != "" {
		return node.Model
	}
	return e.DefaultModel
}

func (e *LLMExecutor) resolveClient(node *blueprint.NodeSpec) (LLMClient, error) {
	name := node.LLMName
	if name == "" {
		name = node.Model
	}
	if name != "" && e.Registry != nil {
		instance, err := e.Registry.GetLLMInstance(name, map[string]interface{}{
			"provider":    node.LLMConfig.Provider,
			"model":       e.resolveModel(node),
			"temperature": node.LLMConfig.Temperature,
			"max_tokens":  node.LLMConfig.MaxTokens,
		})
		if err == nil {
			if client, ok := instance.(LLMClient); ok {
				return client, nil
			}
		}
	}
	if e.DefaultClient == nil {
		return nil, &registry.NotFoundError{EntityClass: "llm_factory", Name: name}
	}
	return e.DefaultClient, nil
}
