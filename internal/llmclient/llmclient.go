// Package llmclient implements the provider-agnostic executor.LLMClient
// port (spec §4.5, "llm") over any OpenAI-chat-completions-compatible HTTP
// endpoint, following the request-with-context-then-extract-headers shape
// the teacher uses in common/clients/http.go.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/iceos/orchestrator/internal/executor"
	"github.com/iceos/orchestrator/internal/run"
)

// Logger matches the narrow contextual-fields interface shared across this
// module's ambient stack.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Client calls an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     Logger
}

// New builds a Client. baseURL is the provider's API root (e.g.
// "https://api.openai.com/v1"); apiKey is sent as a Bearer token.
func New(baseURL, apiKey string, timeout time.Duration, logger Logger) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		logger:     logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete implements executor.LLMClient.
func (c *Client) Complete(ctx context.Context, req executor.LLMRequest) (executor.LLMResponse, error) {
	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
	})
	if err != nil {
		return executor.LLMResponse{}, fmt.Errorf("llmclient: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return executor.LLMResponse{}, fmt.Errorf("llmclient: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	if c.logger != nil {
		c.logger.Debug("llmclient: completion request", "provider", req.Provider, "model", req.Model)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return executor.LLMResponse{}, fmt.Errorf("llmclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return executor.LLMResponse{}, fmt.Errorf("llmclient: read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return executor.LLMResponse{}, fmt.Errorf("llmclient: decode response: %w", err)
	}
	if resp.StatusCode >= 400 {
		if parsed.Error != nil {
			return executor.LLMResponse{}, fmt.Errorf("llmclient: provider error (%d): %s", resp.StatusCode, parsed.Error.Message)
		}
		return executor.LLMResponse{}, fmt.Errorf("llmclient: provider error (%d): %s", resp.StatusCode, string(raw))
	}
	if len(parsed.Choices) == 0 {
		return executor.LLMResponse{}, fmt.Errorf("llmclient: provider returned no choices")
	}

	return executor.LLMResponse{
		Text: parsed.Choices[0].Message.Content,
		Usage: &run.UsageMetadata{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
	}, nil
}
