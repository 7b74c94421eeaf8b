package engine

import (
	"fmt"
	"sort"

	"github.com/iceos/orchestrator/internal/blueprint"
)

// impliedDependencies returns, for every node, its declared Dependencies
// plus an implicit edge from any condition node that names it in
// true_branch/false_branch. The engine needs this so a branch target is
// never leveled at or before its controlling condition — the validator
// only checks that the referenced id exists, not that it depends on the
// condition (scenario in spec §8.2 names no explicit dependency edge for
// the branch targets).
func impliedDependencies(nodes []blueprint.NodeSpec) map[string][]string {
	deps := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		deps[n.ID] = append([]string{}, n.Dependencies...)
	}
	for _, n := range nodes {
		if n.Kind != blueprint.KindCondition {
			continue
		}
		for _, target := range n.TrueBranch {
			deps[target] = append(deps[target], n.ID)
		}
		for _, target := range n.FalseBranch {
			deps[target] = append(deps[target], n.ID)
		}
	}
	return deps
}

// computeLevels assigns each node a level = 1 + max(levels of dependencies)
// (spec §4.7) and groups node ids by level in deterministic (sorted) order.
func computeLevels(nodes []blueprint.NodeSpec) (byLevel map[int][]string, maxLevel int, err error) {
	byID := make(map[string]*blueprint.NodeSpec, len(nodes))
	for i := range nodes {
		byID[nodes[i].ID] = &nodes[i]
	}
	deps := impliedDependencies(nodes)

	level := make(map[string]int, len(nodes))
	visiting := make(map[string]bool, len(nodes))

	var resolve func(id string) (int, error)
	resolve = func(id string) (int, error) {
		if l, ok := level[id]; ok {
			return l, nil
		}
		if visiting[id] {
			return 0, fmt.Errorf("engine: circular dependency involving node %q", id)
		}
		if _, ok := byID[id]; !ok {
			return 0, fmt.Errorf("engine: dependency %q does not exist", id)
		}
		visiting[id] = true
		max := 0
		for _, dep := range deps[id] {
			dl, err := resolve(dep)
			if err != nil {
				return 0, err
			}
			if dl > max {
				max = dl
			}
		}
		visiting[id] = false
		l := max + 1
		level[id] = l
		return l, nil
	}

	for _, n := range nodes {
		if _, err := resolve(n.ID); err != nil {
			return nil, 0, err
		}
	}

	byLevel = make(map[int][]string)
	for _, n := range nodes {
		l := level[n.ID]
		byLevel[l] = append(byLevel[l], n.ID)
		if l > maxLevel {
			maxLevel = l
		}
	}
	for l := range byLevel {
		sort.Strings(byLevel[l])
	}
	return byLevel, maxLevel, nil
}
