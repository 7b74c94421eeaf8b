// Package execctx implements the Context Manager (C4): the per-run map of
// completed node results, a session-scoped key/value store, and the
// resolve_inputs / render_templates operations that feed node execution.
package execctx

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/iceos/orchestrator/internal/blueprint"
	"github.com/iceos/orchestrator/internal/run"
	"github.com/iceos/orchestrator/internal/tmpl"
)

// RunContext owns the per-run {node_id -> NodeExecutionResult} map and the
// session-scoped key/value store used by initial_context and
// input_mappings. It is safe for concurrent use: the engine commits one
// node's result at a time, and may read concurrently from several
// in-flight nodes at the next level.
type RunContext struct {
	mu       sync.RWMutex
	RunID    string
	results  map[string]run.NodeExecutionResult
	kv       map[string]interface{}
	renderer *tmpl.Renderer
}

// New returns a RunContext seeded with the run's initial_context values.
func New(runID string, initialContext map[string]interface{}) *RunContext {
	kv := make(map[string]interface{}, len(initialContext))
	for k, v := range initialContext {
		kv[k] = v
	}
	return &RunContext{
		RunID:    runID,
		results:  make(map[string]run.NodeExecutionResult),
		kv:       kv,
		renderer: tmpl.NewRenderer(),
	}
}

// Commit records a node's completed result. Only the scheduler calls this,
// and only after a node's goroutine has returned — this is the "committed"
// boundary resolve_inputs relies on for its ordering guarantee.
func (c *RunContext) Commit(nodeID string, result run.NodeExecutionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[nodeID] = result
}

// Result returns the committed result for a node, if any.
func (c *RunContext) Result(nodeID string) (run.NodeExecutionResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.results[nodeID]
	return r, ok
}

// Global reads a session-scoped key/value entry.
func (c *RunContext) Global(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.kv[key]
	return v, ok
}

// SetGlobal writes a session-scoped key/value entry.
func (c *RunContext) SetGlobal(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kv[key] = value
}

// ResolveInputs resolves every declared input_mapping for a node against
// the committed results of its producers, returning the consumer-field ->
// resolved-value map the executor receives as its input.
func (c *RunContext) ResolveInputs(node *blueprint.NodeSpec) (map[string]interface{}, error) {
	resolved := make(map[string]interface{}, len(node.InputMappings))

	for field, mapping := range node.InputMappings {
		producer, ok := c.Result(mapping.SourceNodeID)
		if !ok {
			return nil, &UnresolvedInputError{
				ConsumerField:    field,
				SourceNodeID:     mapping.SourceNodeID,
				SourceOutputPath: mapping.SourceOutputPath,
			}
		}

		if mapping.SourceOutputPath == "" {
			resolved[field] = producer.Output
			continue
		}

		value, err := resolveOutputPath(producer.Output, mapping.SourceOutputPath)
		if err != nil {
			return nil, &UnresolvedInputError{
				ConsumerField:    field,
				SourceNodeID:     mapping.SourceNodeID,
				SourceOutputPath: mapping.SourceOutputPath,
			}
		}
		resolved[field] = value
	}

	return resolved, nil
}

// ResolvePath resolves a "producer_node.dotted.path" reference (as used by
// loop's items_source) directly against a committed result, independent of
// any declared input_mapping.
func (c *RunContext) ResolvePath(path string) (interface{}, error) {
	nodeID, rest := splitFirstSegment(path)
	producer, ok := c.Result(nodeID)
	if !ok {
		return nil, fmt.Errorf("context: producer node %q has no committed result", nodeID)
	}
	if rest == "" {
		return producer.Output, nil
	}
	return resolveOutputPath(producer.Output, rest)
}

func splitFirstSegment(path string) (head, rest string) {
	for i, c := range path {
		if c == '.' {
			return path[:i], path[i+1:]
		}
	}
	return path, ""
}

func resolveOutputPath(output map[string]interface{}, path string) (interface{}, error) {
	raw, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("context: marshal producer output: %w", err)
	}
	result := gjson.GetBytes(raw, path)
	if !result.Exists() {
		return nil, fmt.Errorf("context: path %q not found", path)
	}
	return result.Value(), nil
}

// RenderTemplates walks value (string, map, or slice) and expands any
// Jinja-style template strings against vars, merged with this context's
// global key/value store. NodeExecutionResult values embedded in vars are
// unwrapped to their Output field first, so templates address plain data
// rather than the envelope.
func (c *RunContext) RenderTemplates(value interface{}, vars map[string]interface{}) (interface{}, error) {
	merged := c.MergedVars(vars)
	return c.renderValue(value, merged)
}

// RenderStrict renders a single template string under strict-undefined
// semantics: referencing a variable not present in vars or the session's
// global store is an error, not an empty string (used for llm prompts).
func (c *RunContext) RenderStrict(src string, vars map[string]interface{}) (string, error) {
	merged := c.MergedVars(vars)
	return c.renderer.RenderStrict(src, merged)
}

// MergedVars merges this context's session-scoped global store underneath
// vars (vars win on key collision), unwrapping any NodeExecutionResult
// values to their Output field. Expression evaluation and template
// rendering both resolve variables this way, so an initial_context value
// is visible to a condition/monitor/recursive expression even when the
// node declares no input_mapping for it.
func (c *RunContext) MergedVars(vars map[string]interface{}) map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	merged := make(map[string]interface{}, len(c.kv)+len(vars))
	for k, v := range c.kv {
		merged[k] = v
	}
	for k, v := range vars {
		merged[k] = unwrapResult(v)
	}
	return merged
}

func unwrapResult(v interface{}) interface{} {
	if r, ok := v.(run.NodeExecutionResult); ok {
		return r.Output
	}
	if r, ok := v.(*run.NodeExecutionResult); ok {
		return r.Output
	}
	return v
}

func (c *RunContext) renderValue(value interface{}, vars map[string]interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return c.renderer.Render(v, vars)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, inner := range v {
			rendered, err := c.renderValue(inner, vars)
			if err != nil {
				return nil, err
			}
			out[k] = rendered
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, inner := range v {
			rendered, err := c.renderValue(inner, vars)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil
	default:
		return value, nil
	}
}
