package models

// Unit is a device group. Parent is empty for top-level groups, whose
// parent is the shared scope.
type Unit struct {
	Name   string `json:"name"`
	Parent string `json:"parent,omitempty"`
}

// Hierarchy indexes device groups by name.
type Hierarchy map[string]string

// NewHierarchy builds a name → parent index.
func NewHierarchy(units []Unit) Hierarchy {
	h := make(Hierarchy, len(units))
	for _, u := range units {
		h[u.Name] = u.Parent
	}
	return h
}

// Known reports whether the hierarchy has any parent information.
func (h Hierarchy) Known() bool {
	for _, p := range h {
		if p != "" {
			return true
		}
	}
	return false
}

// IsAncestor reports whether ancestor sits above unit. The shared scope is
// above every unit.
func (h Hierarchy) IsAncestor(ancestor, unit string) bool {
	if ancestor == SharedUnit {
		return true
	}
	seen := map[string]bool{}
	for cur := h[unit]; cur != "" && !seen[cur]; cur = h[cur] {
		if cur == ancestor {
			return true
		}
		seen[cur] = true
	}
	return false
}

// UnitNames returns the unit names in order.
func UnitNames(units []Unit) []string {
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = u.Name
	}
	return out
}
