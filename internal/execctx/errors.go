package execctx

import "fmt"

// UnresolvedInputError is returned when an input_mapping's dotted path
// cannot be found on the producing node's output and no default exists.
type UnresolvedInputError struct {
	ConsumerField    string
	SourceNodeID     string
	SourceOutputPath string
}

func (e *UnresolvedInputError) Error() string {
	return fmt.Sprintf("context: input %q: path %q not found on node %q output",
		e.ConsumerField, e.SourceOutputPath, e.SourceNodeID)
}
