// Package tools provides the built-in tool instances registered into
// internal/registry for "tool" kind nodes, following the
// request-with-context-then-extract-headers shape common/clients/http.go
// uses, guarded by internal/tools/security (adapted from
// cmd/http-worker/security).
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/iceos/orchestrator/internal/tools/security"
)

// Logger matches the narrow contextual-fields interface shared across this
// module's ambient stack.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// HTTPTool is the built-in "http" tool: it issues a single outbound HTTP
// request described by a node's ToolArgs, after running the target URL
// through the SSRF/path-traversal guards in internal/tools/security.
//
// Expected args (from NodeSpec.ToolArgs, after template rendering):
//
//	url     string            (required)
//	method  string            (default "GET")
//	headers map[string]interface{} (optional; non-string values are skipped)
//	body    string            (optional, raw request body)
type HTTPTool struct {
	client    *http.Client
	validator *security.URLValidator
	logger    Logger
}

// NewHTTPTool builds an HTTPTool. timeout bounds the underlying HTTP client;
// per-call cancellation still comes from sandbox.Run via ctx.
func NewHTTPTool(timeout time.Duration, logger Logger) *HTTPTool {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTool{
		client:    &http.Client{Timeout: timeout},
		validator: security.NewURLValidator(),
		logger:    logger,
	}
}

// Invoke implements executor.Tool.
func (t *HTTPTool) Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	rawURL, _ := args["url"].(string)
	if rawURL == "" {
		return nil, fmt.Errorf("http tool: %q argument is required", "url")
	}
	if err := t.validator.Validate(rawURL); err != nil {
		return nil, fmt.Errorf("http tool: url rejected: %w", err)
	}

	method, _ := args["method"].(string)
	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)

	var bodyReader io.Reader
	if raw, ok := args["body"]; ok && raw != nil {
		switch v := raw.(type) {
		case string:
			bodyReader = strings.NewReader(v)
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("http tool: encode body: %w", err)
			}
			bodyReader = bytes.NewReader(encoded)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("http tool: build request: %w", err)
	}
	if headers, ok := args["headers"].(map[string]interface{}); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	if t.logger != nil {
		t.logger.Debug("http tool: dispatching request", "method", method, "url", rawURL)
	}

	return t.do(req)
}

// do executes a built request and shapes the response into the tool's
// result map. Split out from Invoke so the dial/parse path is exercisable
// without the SSRF guard (which would otherwise reject any test server,
// since those always bind to loopback).
func (t *HTTPTool) do(req *http.Request) (interface{}, error) {
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http tool: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("http tool: read response: %w", err)
	}

	result := map[string]interface{}{
		"status":  resp.StatusCode,
		"headers": flattenHeaders(resp.Header),
		"body":    string(raw),
	}
	var decoded interface{}
	if json.Unmarshal(raw, &decoded) == nil {
		result["json"] = decoded
	}
	return result, nil
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
