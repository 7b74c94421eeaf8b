package expr

import "sync"

// Evaluator compiles and caches condition expressions, mirroring the
// compile-once/evaluate-many shape workflow engines use for hot-path
// condition nodes. Unlike a general-purpose expression engine, the grammar
// it compiles against is closed: it has no call or index node, so no
// expression that parses can ever invoke anything or reach outside the
// variables it's handed.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]node
}

// NewEvaluator returns an Evaluator with an empty compile cache.
func NewEvaluator() *Evaluator {
	return &Evaluator{cache: make(map[string]node)}
}

// Evaluate compiles expression (or reuses a cached compilation) and
// evaluates it against vars. The result must be a boolean; anything else is
// an InvalidExpressionError, since condition/monitor nodes consume a
// boolean verdict and nothing else.
func (e *Evaluator) Evaluate(expression string, vars map[string]interface{}) (bool, error) {
	n, err := e.compile(expression)
	if err != nil {
		return false, err
	}
	result, err := n.eval(vars)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, &InvalidExpressionError{Expression: expression, Reason: "expression did not evaluate to a boolean"}
	}
	return b, nil
}

// EvaluateValue compiles expression (or reuses a cached compilation) and
// evaluates it against vars, returning the raw result without requiring it
// to be a boolean. Used by callers that need a value rather than a
// verdict (e.g. the code-node sandbox), while still only ever running the
// same closed, call-free grammar as Evaluate.
func (e *Evaluator) EvaluateValue(expression string, vars map[string]interface{}) (interface{}, error) {
	n, err := e.compile(expression)
	if err != nil {
		return nil, err
	}
	return n.eval(vars)
}

func (e *Evaluator) compile(expression string) (node, error) {
	e.mu.RLock()
	n, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return n, nil
	}

	n, err := parse(expression)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expression] = n
	e.mu.Unlock()
	return n, nil
}

// CompileForValidation parses expression without evaluating it, for use by
// the graph validator's runtime_validate step: a condition/monitor/recursive
// node is only valid if its expression parses under the restricted grammar.
func CompileForValidation(expression string) (bool, error) {
	_, err := parse(expression)
	return err == nil, err
}

// ClearCache discards all compiled expressions.
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]node)
}

// CacheSize reports the number of distinct expressions currently compiled.
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
