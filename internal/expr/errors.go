package expr

import "fmt"

// InvalidExpressionError is returned when an expression does not parse
// under the restricted grammar (spec §4.3): unbalanced parens, stray
// tokens, function calls, indexing, or any construct outside the accepted
// subset.
type InvalidExpressionError struct {
	Expression string
	Reason     string
}

func (e *InvalidExpressionError) Error() string {
	return fmt.Sprintf("invalid expression %q: %s", e.Expression, e.Reason)
}

// UnknownVariableError is returned when a parsed expression references an
// identifier the supplied variable map cannot resolve.
type UnknownVariableError struct {
	Name string
}

func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("unknown variable: %s", e.Name)
}
