package models

import "sort"

// DuplicateRecord maps an object name to the units that hold an identical
// copy of it. Unit lists keep insertion order and never repeat a unit.
type DuplicateRecord map[string][]string

// Add records that name exists in each of units.
func (r DuplicateRecord) Add(name string, units ...string) {
	existing := r[name]
	for _, u := range units {
		if !containsString(existing, u) {
			existing = append(existing, u)
		}
	}
	r[name] = existing
}

// Names returns the recorded names in sorted order.
func (r DuplicateRecord) Names() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NearDuplicate is a pair of same-named objects whose payloads differ.
type NearDuplicate struct {
	Name  string `json:"name"`
	Kind  Kind   `json:"kind"`
	Left  Object `json:"left"`
	Right Object `json:"right"`
	Diff  string `json:"diff"`
}

// Findings is the output of one duplicate search, keyed by kind.
type Findings struct {
	Duplicates     map[Kind]DuplicateRecord `json:"duplicates"`
	NearDuplicates map[Kind][]NearDuplicate `json:"near_duplicates,omitempty"`
	Shared         map[Kind][]string        `json:"shared,omitempty"`
}

// NewFindings returns empty findings.
func NewFindings() *Findings {
	return &Findings{
		Duplicates:     make(map[Kind]DuplicateRecord),
		NearDuplicates: make(map[Kind][]NearDuplicate),
		Shared:         make(map[Kind][]string),
	}
}

// Total returns the number of duplicate names across all kinds.
func (f *Findings) Total() int {
	n := 0
	for _, rec := range f.Duplicates {
		n += len(rec)
	}
	return n
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
