package engine

import "fmt"

// DepthExceededError reports a run aborted by the depth guard (spec §4.7
// step 2e, §7): the level ceiling was reached before the blueprint
// finished.
type DepthExceededError struct {
	Level   int
	Ceiling int
}

func (e *DepthExceededError) Error() string {
	return fmt.Sprintf("engine: depth guard aborted at level %d (ceiling %d)", e.Level, e.Ceiling)
}

// BudgetExceededError reports a run aborted because cumulative cost or
// token usage crossed its configured ceiling under a fail-closed budget
// policy.
type BudgetExceededError struct {
	Reason string
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("engine: budget exceeded: %s", e.Reason)
}

// haltError wraps the first node failure that aborted a run under the
// halt failure policy.
type haltError struct {
	NodeID string
	Reason string
}

func (e *haltError) Error() string {
	return fmt.Sprintf("engine: node %q failed under halt policy: %s", e.NodeID, e.Reason)
}

// abortedError reports a run cancelled by a monitor node's abort trigger.
type abortedError struct {
	NodeID string
}

func (e *abortedError) Error() string {
	return fmt.Sprintf("engine: monitor node %q triggered an abort", e.NodeID)
}
