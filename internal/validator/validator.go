// Package validator runs the Graph Validator (C3): the ordered, accumulating
// checks applied to a Blueprint before it can be finalized or run.
package validator

import (
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/iceos/orchestrator/internal/blueprint"
	"github.com/iceos/orchestrator/internal/expr"
	"github.com/iceos/orchestrator/internal/tmpl"
)

// Result is an alias of blueprint.ValidationResult so full and incremental
// validation share one shape, per spec §4.2.
type Result = blueprint.ValidationResult

// Validator runs the seven ordered checks from the blueprint validation
// pipeline, checking tool_name/agent_package/workflow_ref references against
// a registry lookup and condition/monitor/recursive expressions against the
// restricted expression grammar.
type Validator struct {
	lookup RegistryLookup
}

// RegistryLookup is the minimal read-only view of the Unified Registry the
// validator needs to confirm tool_name/agent_package/workflow_ref references
// resolve to something actually registered.
type RegistryLookup interface {
	HasTool(name string) bool
	HasAgent(name string) bool
	HasWorkflow(name string) bool
}

// NewValidator builds a Validator. lookup may be nil, in which case
// referential-integrity checks against the registry are skipped (used by
// the authoring UI's incremental validation, which runs before a registry
// is necessarily wired up).
func NewValidator(lookup RegistryLookup) *Validator {
	return &Validator{lookup: lookup}
}

// Validate runs all seven checks against a finalized Blueprint, in spec
// order, accumulating errors rather than stopping at the first failure.
// Kind-specific defaults (spec §3) are applied to bp, in place, before any
// check runs — this is "validation time" for the default-application
// contract. checkOutputSchemaPolicy has no llm exemption of its own: an llm
// node without an output_schema passes only because ApplyDefaults has
// already given it the default one.
func (v *Validator) Validate(bp *blueprint.Blueprint) Result {
	bp.ApplyDefaults()

	var errs []string

	errs = append(errs, v.checkSchemaVersion(bp)...)
	errs = append(errs, v.checkNodeIDs(bp)...)
	errs = append(errs, v.checkReferentialIntegrity(bp)...)
	errs = append(errs, v.checkOutputSchemaPolicy(bp)...)
	errs = append(errs, v.checkCycles(bp)...)
	errs = append(errs, v.checkPlaceholders(bp)...)
	errs = append(errs, v.checkRuntimeValidate(bp)...)

	sort.Strings(errs)
	return Result{
		IsValid:     len(errs) == 0,
		Errors:      errs,
		CanFinalize: len(errs) == 0,
	}
}

func (v *Validator) checkSchemaVersion(bp *blueprint.Blueprint) []string {
	if !blueprint.AcceptedSchemaVersions[bp.SchemaVersion] {
		return []string{fmt.Sprintf("schema_version %q is not in the accepted set", bp.SchemaVersion)}
	}
	return nil
}

func (v *Validator) checkNodeIDs(bp *blueprint.Blueprint) []string {
	var errs []string
	seen := make(map[string]bool)
	for _, n := range bp.Nodes {
		if !blueprint.ValidNodeID(n.ID) {
			errs = append(errs, fmt.Sprintf("node %q: id does not match the required pattern", n.ID))
		}
		if seen[n.ID] {
			errs = append(errs, fmt.Sprintf("node %q: duplicate node id", n.ID))
		}
		seen[n.ID] = true
	}
	return errs
}

func (v *Validator) checkReferentialIntegrity(bp *blueprint.Blueprint) []string {
	var errs []string
	ids := nodeIDSet(bp)

	for _, n := range bp.Nodes {
		for _, dep := range n.Dependencies {
			if !ids[dep] {
				errs = append(errs, fmt.Sprintf("node %q: dependency %q does not exist", n.ID, dep))
			}
		}

		switch n.Kind {
		case blueprint.KindCondition:
			errs = append(errs, checkBranchRefs(n.ID, "true_branch", n.TrueBranch, ids)...)
			errs = append(errs, checkBranchRefs(n.ID, "false_branch", n.FalseBranch, ids)...)
		case blueprint.KindTool:
			if n.ToolName == "" {
				errs = append(errs, fmt.Sprintf("node %q: tool_name is required", n.ID))
			} else if v.lookup != nil && !v.lookup.HasTool(n.ToolName) {
				errs = append(errs, fmt.Sprintf("node %q: tool_name %q is not registered", n.ID, n.ToolName))
			}
		case blueprint.KindAgent:
			if n.Package == "" {
				errs = append(errs, fmt.Sprintf("node %q: package is required", n.ID))
			} else if v.lookup != nil && !v.lookup.HasAgent(n.Package) {
				errs = append(errs, fmt.Sprintf("node %q: package %q is not registered", n.ID, n.Package))
			}
		case blueprint.KindWorkflow:
			if n.WorkflowRef == "" {
				errs = append(errs, fmt.Sprintf("node %q: workflow_ref is required", n.ID))
			} else if v.lookup != nil && !v.lookup.HasWorkflow(n.WorkflowRef) {
				errs = append(errs, fmt.Sprintf("node %q: workflow_ref %q is not registered", n.ID, n.WorkflowRef))
			}
		case blueprint.KindRecursive:
			if n.AgentPackage != "" && v.lookup != nil && !v.lookup.HasAgent(n.AgentPackage) {
				errs = append(errs, fmt.Sprintf("node %q: agent_package %q is not registered", n.ID, n.AgentPackage))
			}
			if n.WorkflowRef != "" && v.lookup != nil && !v.lookup.HasWorkflow(n.WorkflowRef) {
				errs = append(errs, fmt.Sprintf("node %q: workflow_ref %q is not registered", n.ID, n.WorkflowRef))
			}
		}
	}
	return errs
}

func checkBranchRefs(nodeID, field string, branch []string, ids map[string]bool) []string {
	var errs []string
	for _, ref := range branch {
		if !ids[ref] {
			errs = append(errs, fmt.Sprintf("node %q: %s references unknown node %q", nodeID, field, ref))
		}
	}
	return errs
}

func nodeIDSet(bp *blueprint.Blueprint) map[string]bool {
	ids := make(map[string]bool, len(bp.Nodes))
	for _, n := range bp.Nodes {
		ids[n.ID] = true
	}
	return ids
}

func (v *Validator) checkOutputSchemaPolicy(bp *blueprint.Blueprint) []string {
	var errs []string
	for _, n := range bp.Nodes {
		// Validate already ran ApplyDefaults, so an llm node only reaches
		// here with a nil OutputSchema if ApplyDefaults itself didn't run
		// (e.g. a Blueprint built and checked without going through
		// Validate) — still an error in that case.
		if n.OutputSchema == nil {
			errs = append(errs, fmt.Sprintf("node %q: output_schema is required for kind %q", n.ID, n.Kind))
			continue
		}
		if err := validateSchemaShape(n.OutputSchema); err != nil {
			errs = append(errs, fmt.Sprintf("node %q: output_schema invalid: %s", n.ID, err))
		}
	}
	return errs
}

// validateSchemaShape accepts either a compilable JSON Schema or a simple
// map whose values are declared literal type names.
func validateSchemaShape(schema map[string]interface{}) error {
	if looksLikeJSONSchema(schema) {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("inline.json", schema); err != nil {
			return err
		}
		_, err := compiler.Compile("inline.json")
		return err
	}

	literalTypes := map[string]bool{"string": true, "number": true, "integer": true, "boolean": true, "array": true, "object": true}
	for field, v := range schema {
		t, ok := v.(string)
		if !ok || !literalTypes[t] {
			return fmt.Errorf("field %q: %v is not a recognized literal type", field, v)
		}
	}
	return nil
}

func looksLikeJSONSchema(schema map[string]interface{}) bool {
	_, hasType := schema["type"]
	_, hasProps := schema["properties"]
	_, hasSchema := schema["$schema"]
	return hasType || hasProps || hasSchema
}

func (v *Validator) checkCycles(bp *blueprint.Blueprint) []string {
	inDegree := make(map[string]int, len(bp.Nodes))
	adj := make(map[string][]string, len(bp.Nodes))
	for _, n := range bp.Nodes {
		if _, ok := inDegree[n.ID]; !ok {
			inDegree[n.ID] = 0
		}
		for _, dep := range n.Dependencies {
			adj[dep] = append(adj[dep], n.ID)
			inDegree[n.ID]++
		}
	}

	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	processed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed++
		for _, next := range adj[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if processed != len(bp.Nodes) {
		return []string{"blueprint contains a cycle among node dependencies"}
	}
	return nil
}

func (v *Validator) checkPlaceholders(bp *blueprint.Blueprint) []string {
	var errs []string
	for _, n := range bp.Nodes {
		if n.Kind != blueprint.KindLLM || n.Prompt == "" {
			continue
		}
		provided := make(map[string]bool)
		for key := range n.InputMappings {
			provided[key] = true
		}
		for _, name := range tmpl.Placeholders(n.Prompt) {
			root := rootSegment(name)
			if !provided[root] && !provided[name] {
				errs = append(errs, fmt.Sprintf("node %q: prompt references %q with no matching input_mapping", n.ID, name))
			}
		}
	}
	return errs
}

func rootSegment(path string) string {
	for i, c := range path {
		if c == '.' {
			return path[:i]
		}
	}
	return path
}

func (v *Validator) checkRuntimeValidate(bp *blueprint.Blueprint) []string {
	var errs []string
	for _, n := range bp.Nodes {
		switch n.Kind {
		case blueprint.KindCondition:
			if _, err := expr.CompileForValidation(n.Expression); err != nil {
				errs = append(errs, fmt.Sprintf("node %q: expression invalid: %s", n.ID, err))
			}
		case blueprint.KindMonitor:
			if _, err := expr.CompileForValidation(n.MetricExpression); err != nil {
				errs = append(errs, fmt.Sprintf("node %q: metric_expression invalid: %s", n.ID, err))
			}
		case blueprint.KindRecursive:
			hasAgent := n.AgentPackage != ""
			hasWorkflow := n.WorkflowRef != ""
			if hasAgent == hasWorkflow {
				errs = append(errs, fmt.Sprintf("node %q: exactly one of agent_package or workflow_ref is required", n.ID))
			}
			if _, err := expr.CompileForValidation(n.ConvergenceCondition); err != nil {
				errs = append(errs, fmt.Sprintf("node %q: convergence_condition invalid: %s", n.ID, err))
			}
		case blueprint.KindSwarm:
			if len(n.Agents) < 2 {
				errs = append(errs, fmt.Sprintf("node %q: swarm requires at least 2 agents", n.ID))
			}
			roles := make(map[string]bool)
			for _, a := range n.Agents {
				if roles[a.Role] {
					errs = append(errs, fmt.Sprintf("node %q: duplicate swarm agent role %q", n.ID, a.Role))
				}
				roles[a.Role] = true
			}
		}
	}
	return errs
}

// Finalize converts a PartialBlueprint into a candidate Blueprint (applying
// kind-specific defaults along the way, via Validate) and runs it through
// the full validation pipeline. Per spec §3/§4.2, finalization of an
// authoring session's draft must fail if the candidate does not validate —
// callers must check Result.IsValid before treating the returned Blueprint
// as usable.
func (v *Validator) Finalize(pb *blueprint.PartialBlueprint) (*blueprint.Blueprint, Result) {
	bp := pb.ToBlueprint()
	result := v.Validate(&bp)
	return &bp, result
}

// ValidateIncremental runs the same checks against an in-progress
// PartialBlueprint, converted to a candidate Blueprint, and adds authoring
// suggestions (spec §4.2: "consider adding output_schema" and similar) that
// full validation does not produce.
func (v *Validator) ValidateIncremental(pb *blueprint.PartialBlueprint) Result {
	candidate := pb.ToBlueprint()
	result := v.Validate(&candidate)

	for _, n := range candidate.Nodes {
		if n.Kind != blueprint.KindLLM && n.OutputSchema == nil {
			result.Suggestions = append(result.Suggestions, fmt.Sprintf("node %q: consider adding output_schema", n.ID))
		}
	}
	for _, pn := range pb.Nodes {
		if len(pn.PendingInputs) > 0 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("node %q: still has unresolved pending inputs: %v", pn.ID, pn.PendingInputs))
			result.CanFinalize = false
		}
	}

	sort.Strings(result.Suggestions)
	sort.Strings(result.Warnings)
	return result
}
