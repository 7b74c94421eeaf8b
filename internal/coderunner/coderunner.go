// Package coderunner implements sandbox.CodeRunner (the isolated execution
// environment "code" nodes run inside, spec §4.6) over the restricted
// expression grammar in internal/expr. No embeddable Python/JS interpreter
// appears anywhere in the example corpus this module was grounded on, so
// rather than fabricate a dependency this runner treats a code node's body
// as a semicolon-separated sequence of `binding = expression` statements (or
// a single bare expression) in that same restricted grammar — the same
// safety property the sandbox promises (no imports, no arbitrary calls, no
// escape from the allow-listed surface) without needing a real scripting
// runtime. See DESIGN.md for this scope decision.
package coderunner

import (
	"context"
	"fmt"
	"strings"

	"github.com/iceos/orchestrator/internal/expr"
	"github.com/iceos/orchestrator/internal/sandbox"
)

// Runner implements sandbox.CodeRunner.
type Runner struct {
	evaluator *expr.Evaluator
}

// New builds a Runner.
func New() *Runner {
	return &Runner{evaluator: expr.NewEvaluator()}
}

// RunCode implements sandbox.CodeRunner. language is accepted but not
// branched on: the supported statement grammar is the same regardless of
// whether the node declared "python" or "javascript", since both map onto
// the same restricted, side-effect-free subset.
func (r *Runner) RunCode(ctx context.Context, language, code string, bindings map[string]interface{}) (sandbox.CodeResult, error) {
	vars := make(map[string]interface{}, len(bindings))
	for k, v := range bindings {
		vars[k] = v
	}

	var last interface{}
	for _, stmt := range splitStatements(code) {
		name, expression, isAssignment := splitAssignment(stmt)
		value, err := r.evaluator.EvaluateValue(expression, vars)
		if err != nil {
			return sandbox.CodeResult{WasmReturnCode: 1}, fmt.Errorf("coderunner: %w", err)
		}
		if isAssignment {
			vars[name] = value
		}
		last = value

		select {
		case <-ctx.Done():
			return sandbox.CodeResult{WasmReturnCode: 1}, ctx.Err()
		default:
		}
	}

	return sandbox.CodeResult{
		WasmReturnCode: 0,
		Result:         map[string]interface{}{"value": last, "bindings": vars},
	}, nil
}

func splitStatements(code string) []string {
	parts := strings.Split(code, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitAssignment splits "name = expr" from a bare expression. It only
// recognizes a single leading `ident =` (not `==`), so comparisons inside
// the expression are left alone.
func splitAssignment(stmt string) (name, expression string, isAssignment bool) {
	idx := strings.IndexByte(stmt, '=')
	if idx <= 0 || idx+1 >= len(stmt) || stmt[idx+1] == '=' {
		return "", stmt, false
	}
	candidate := strings.TrimSpace(stmt[:idx])
	if !isIdentifier(candidate) {
		return "", stmt, false
	}
	return candidate, strings.TrimSpace(stmt[idx+1:]), true
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
