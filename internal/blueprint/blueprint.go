package blueprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// AcceptedSchemaVersions is the set of blueprint schema versions this engine
// understands (spec §3).
var AcceptedSchemaVersions = map[string]bool{"1.1.0": true}

// Blueprint is an immutable, validated DAG document.
type Blueprint struct {
	SchemaVersion string                 `json:"schema_version"`
	BlueprintID   string                 `json:"blueprint_id"`
	Nodes         []NodeSpec             `json:"nodes"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// ApplyDefaults fills in kind-specific defaults (spec §3: a default
// output_schema of {text: string} for llm nodes that declare none) on every
// node, in place.
func (b *Blueprint) ApplyDefaults() {
	for i := range b.Nodes {
		b.Nodes[i].ApplyDefaults()
	}
}

// NodeByID returns the node with the given id, if present.
func (b *Blueprint) NodeByID(id string) (*NodeSpec, bool) {
	for i := range b.Nodes {
		if b.Nodes[i].ID == id {
			return &b.Nodes[i], true
		}
	}
	return nil, false
}

// Digest returns a stable content hash of the blueprint: the hex SHA-256 of
// its JSON encoding.
func (b *Blueprint) Digest() string {
	canon, _ := json.Marshal(b)
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:])
}

// PartialNodeSpec is a NodeSpec that may still be missing required fields
// while it is being authored (spec §3 PartialBlueprint).
type PartialNodeSpec struct {
	NodeSpec
	PendingInputs  []string               `json:"pending_inputs,omitempty"`
	PendingOutputs []string               `json:"pending_outputs,omitempty"`
	PartialConfig  map[string]interface{} `json:"partial_config,omitempty"`
}

// ValidationResult is the shape returned by incremental and full validation.
type ValidationResult struct {
	IsValid     bool     `json:"is_valid"`
	Errors      []string `json:"errors"`
	Warnings    []string `json:"warnings,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	CanFinalize bool     `json:"can_finalize"`
}

// PartialBlueprint is the author-time, incrementally-validated predecessor
// of a Blueprint.
type PartialBlueprint struct {
	SchemaVersion string            `json:"schema_version"`
	BlueprintID   string            `json:"blueprint_id"`
	Nodes         []PartialNodeSpec `json:"nodes"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// AddNode appends a node to the partial blueprint.
func (p *PartialBlueprint) AddNode(n PartialNodeSpec) {
	p.Nodes = append(p.Nodes, n)
}

// AddEdge records a dependency from `to` on `from`.
func (p *PartialBlueprint) AddEdge(from, to string) bool {
	for i := range p.Nodes {
		if p.Nodes[i].ID == to {
			for _, d := range p.Nodes[i].Dependencies {
				if d == from {
					return true // already present, idempotent
				}
			}
			p.Nodes[i].Dependencies = append(p.Nodes[i].Dependencies, from)
			return true
		}
	}
	return false
}

// ToBlueprint strips partial-authoring bookkeeping and produces a candidate
// Blueprint for full validation. It does not itself validate.
func (p *PartialBlueprint) ToBlueprint() Blueprint {
	nodes := make([]NodeSpec, len(p.Nodes))
	for i, pn := range p.Nodes {
		nodes[i] = pn.NodeSpec
	}
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return Blueprint{
		SchemaVersion: p.SchemaVersion,
		BlueprintID:   p.BlueprintID,
		Nodes:         nodes,
		Metadata:      p.Metadata,
	}
}
