package blueprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Position is an (x, y) node position used by the visual composer.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Draft is the author-time, mutable predecessor of a Blueprint (spec §3).
// VersionLock is intentionally excluded from its own hash input.
type Draft struct {
	SessionID      string              `json:"session_id"`
	PromptHistory  []string            `json:"prompt_history,omitempty"`
	MermaidVersions []string           `json:"mermaid_versions,omitempty"`
	LockedNodes    []string            `json:"locked_nodes,omitempty"`
	NodePositions  map[string]Position `json:"node_positions,omitempty"`
	Meta           map[string]interface{} `json:"meta,omitempty"`
	LastBlueprint  *Blueprint          `json:"last_blueprint,omitempty"`
	Partial        *PartialBlueprint   `json:"partial,omitempty"`
}

// lockable is the subset of Draft hashed for the version lock: everything
// except SessionID and the lock itself (there is no lock field stored on
// Draft — the lock is always derived, never persisted, so it can never
// itself drift).
type lockable struct {
	PromptHistory   []string               `json:"prompt_history,omitempty"`
	MermaidVersions []string               `json:"mermaid_versions,omitempty"`
	LockedNodes     []string               `json:"locked_nodes,omitempty"`
	NodePositions   map[string]Position    `json:"node_positions,omitempty"`
	Meta            map[string]interface{} `json:"meta,omitempty"`
	LastBlueprint   *Blueprint             `json:"last_blueprint,omitempty"`
	Partial         *PartialBlueprint      `json:"partial,omitempty"`
}

// VersionLock computes the SHA-256 of a canonical JSON encoding of the
// draft's mutable fields. Two drafts produce the same lock iff every field
// but SessionID is equal.
func (d *Draft) VersionLock() string {
	canon, _ := json.Marshal(lockable{
		PromptHistory:   d.PromptHistory,
		MermaidVersions: d.MermaidVersions,
		LockedNodes:     d.LockedNodes,
		NodePositions:   d.NodePositions,
		Meta:            d.Meta,
		LastBlueprint:   d.LastBlueprint,
		Partial:         d.Partial,
	})
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:])
}

// IsLocked reports whether nodeID is author-locked against further edits.
func (d *Draft) IsLocked(nodeID string) bool {
	for _, id := range d.LockedNodes {
		if id == nodeID {
			return true
		}
	}
	return false
}
