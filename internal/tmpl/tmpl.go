// Package tmpl renders the Jinja-style placeholders used in prompt and
// tool_args fields ({{ dotted.path }}, {{ x or "default" }}) on top of gonja.
package tmpl

import (
	"fmt"
	"regexp"

	"github.com/nikolalohinski/gonja"
	"github.com/nikolalohinski/gonja/exec"
)

// Renderer compiles and caches templates, keyed by source text, the same
// way the expression evaluator caches compiled expressions.
type Renderer struct {
	cache map[string]*exec.Template
}

// NewRenderer returns a Renderer with an empty compile cache.
func NewRenderer() *Renderer {
	return &Renderer{cache: make(map[string]*exec.Template)}
}

// Render expands a Jinja-style template string against the supplied
// variables. Missing variables render as empty string unless a Jinja
// `or` fallback is present in the template itself — gonja's default
// undefined behaves this way, matching the "or default" authoring pattern
// documented for prompt templates.
func (r *Renderer) Render(src string, vars map[string]interface{}) (string, error) {
	t, ok := r.cache[src]
	if !ok {
		compiled, err := gonja.FromString(src)
		if err != nil {
			return "", fmt.Errorf("tmpl: compile %q: %w", src, err)
		}
		t = compiled
		r.cache[src] = t
	}

	out, err := t.Execute(gonja.Context(vars))
	if err != nil {
		return "", fmt.Errorf("tmpl: render %q: %w", src, err)
	}
	return out, nil
}

// RenderStrict behaves like Render but first verifies every referenced
// placeholder's root variable is present in vars, returning an error
// instead of silently rendering empty string. This is the strict-undefined
// mode the llm executor's prompt rendering requires.
func (r *Renderer) RenderStrict(src string, vars map[string]interface{}) (string, error) {
	for _, name := range Placeholders(src) {
		root := name
		for i, c := range name {
			if c == '.' {
				root = name[:i]
				break
			}
		}
		if _, ok := vars[root]; !ok {
			return "", fmt.Errorf("tmpl: undefined variable %q referenced in template", root)
		}
	}
	return r.Render(src, vars)
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_.]*)\s*(?:\|[^}]*|or\s+[^}]*)?\s*\}\}|\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Placeholders extracts the variable names referenced by a template string,
// covering both the Jinja `{{ name }}` form and the bare `{name}` form
// used by simpler prompt templates. Used by the validator to check that
// every placeholder's root name is an input_mappings key of its node before
// a blueprint is finalized; global keys and input_selection entries are not
// consulted by that check.
func Placeholders(src string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(src, -1)
	seen := make(map[string]bool)
	var names []string
	for _, m := range matches {
		name := m[1]
		if name == "" {
			name = m[2]
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}
