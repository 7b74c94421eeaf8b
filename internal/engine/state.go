package engine

import (
	"sync"

	"github.com/iceos/orchestrator/internal/blueprint"
	"github.com/iceos/orchestrator/internal/run"
)

// FailurePolicy controls how the engine schedules dependents of a failed
// node (spec §4.7).
type FailurePolicy string

const (
	FailureHalt             FailurePolicy = "halt"
	FailureAlways           FailurePolicy = "always"
	FailureContinuePossible FailurePolicy = "continue_possible"
)

// Config parameterizes one run (spec §4.7: "{max_parallel, failure_policy,
// depth_ceiling?, max_tokens?, org_budget_usd?}").
type Config struct {
	MaxParallel       int
	FailurePolicy     FailurePolicy
	DepthCeiling      int
	MaxTokens         int64
	OrgBudgetUSD      float64
	BudgetFailsClosed bool
}

// withDefaults fills unset fields the way the teacher's config layer
// applies environment defaults, so a zero-value Config is still usable.
func (c Config) withDefaults() Config {
	if c.MaxParallel <= 0 {
		c.MaxParallel = 5
	}
	if c.FailurePolicy == "" {
		c.FailurePolicy = FailureContinuePossible
	}
	return c
}

// runState accumulates the mutable scheduling state for one execution:
// which nodes succeeded/failed/were skipped, usage totals, and terminal
// flags set by halt failures, monitor aborts, and guard breaches.
type runState struct {
	mu sync.Mutex

	succeeded map[string]bool
	failed    map[string]bool
	skipped   map[string]bool

	tokens   int64
	costUSD  float64
	apiCalls int64

	aborted       bool
	abortedBy     string
	depthExceeded bool
	budgetErr     error
	haltErr       error
}

func newRunState() *runState {
	return &runState{
		succeeded: make(map[string]bool),
		failed:    make(map[string]bool),
		skipped:   make(map[string]bool),
	}
}

func (s *runState) markSkipped(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped[id] = true
}

func (s *runState) isSkipped(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped[id]
}

func (s *runState) isFailed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed[id]
}

func (s *runState) recordResult(id string, result run.NodeExecutionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if result.Success {
		s.succeeded[id] = true
	} else {
		s.failed[id] = true
	}
	if result.Usage != nil {
		s.tokens += result.Usage.TotalTokens
		s.costUSD += result.Usage.CostUSD
		s.apiCalls++
	}
}

func (s *runState) anyFailure() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.failed) > 0
}

func (s *runState) triggerAbort(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.aborted {
		s.aborted = true
		s.abortedBy = nodeID
	}
}

func (s *runState) isAborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

func (s *runState) usageTotals() (tokens int64, cost float64, apiCalls int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens, s.costUSD, s.apiCalls
}

// partitionActive splits one level's node ids into those eligible to
// dispatch now and those that must be marked skipped, per the policy rules
// in spec §4.7 step 2b. Dependencies are always from strictly earlier
// levels (computeLevels guarantees this), so a direct-dependency check
// against the accumulated skip/failure sets is sufficient — any indirect
// ancestor's skip/failure already propagated to its own direct dependents
// when that ancestor's level was processed.
func (e *Engine) partitionActive(bp *blueprint.Blueprint, ids []string, policy FailurePolicy, state *runState) (active, skippedNow []string) {
	for _, id := range ids {
		if state.isSkipped(id) {
			skippedNow = append(skippedNow, id)
			continue
		}

		node, ok := bp.NodeByID(id)
		if !ok {
			skippedNow = append(skippedNow, id)
			continue
		}

		blockedBySkip := false
		for _, dep := range node.Dependencies {
			if state.isSkipped(dep) {
				blockedBySkip = true
				break
			}
		}
		if blockedBySkip {
			skippedNow = append(skippedNow, id)
			continue
		}

		switch policy {
		case FailureAlways:
			active = append(active, id)
		case FailureHalt:
			if state.anyFailure() {
				skippedNow = append(skippedNow, id)
			} else {
				active = append(active, id)
			}
		default: // continue_possible
			blockedByFailure := false
			for _, dep := range node.Dependencies {
				if state.isFailed(dep) {
					blockedByFailure = true
					break
				}
			}
			if blockedByFailure {
				skippedNow = append(skippedNow, id)
			} else {
				active = append(active, id)
			}
		}
	}
	return active, skippedNow
}
