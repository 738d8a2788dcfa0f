package models

// PreviewAction classifies a planned create against the destination.
const (
	ActionCreate   = "create"
	ActionExists   = "skip_exists" // identical object already at destination
	ActionConflict = "conflict"    // same name, different payload
)

// PreviewEntry describes a single object being considered for consolidation.
type PreviewEntry struct {
	Name        string `json:"name"`
	Kind        Kind   `json:"kind"`
	Destination string `json:"destination"`
	Action      string `json:"action"`
	Diff        string `json:"diff,omitempty"`
}

// ConsolidationPreview holds the results of the destination preflight check.
type ConsolidationPreview struct {
	Entries  map[Kind][]PreviewEntry `json:"entries"`
	Warnings []string                `json:"warnings"`
}

// Count returns how many entries carry the given action.
func (p *ConsolidationPreview) Count(action string) int {
	n := 0
	for _, entries := range p.Entries {
		for _, e := range entries {
			if e.Action == action {
				n++
			}
		}
	}
	return n
}
