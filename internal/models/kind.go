package models

import (
	"fmt"
	"strings"
)

// Kind identifies the type of a policy object.
type Kind string

const (
	KindAddress      Kind = "address"
	KindAddressGroup Kind = "address-group"
	KindService      Kind = "service"
	KindServiceGroup Kind = "service-group"
	KindTag          Kind = "tag"
)

// SharedUnit is the root scope. It is never a duplicate target.
const SharedUnit = "shared"

// KindInfo describes a dedupable object kind.
type KindInfo struct {
	Kind   Kind   `json:"kind"`
	Label  string `json:"label"`  // Human-readable: "Address Groups"
	Plural string `json:"plural"` // "address-groups", used in settings and file names
}

// Kinds lists the dedupable kinds in their default processing order.
var Kinds = []KindInfo{
	{Kind: KindAddressGroup, Label: "Address Groups", Plural: "address-groups"},
	{Kind: KindAddress, Label: "Addresses", Plural: "addresses"},
	{Kind: KindServiceGroup, Label: "Service Groups", Plural: "service-groups"},
	{Kind: KindService, Label: "Services", Plural: "services"},
}

// DefaultKinds returns the plural names of every dedupable kind.
func DefaultKinds() []string {
	out := make([]string, len(Kinds))
	for i, k := range Kinds {
		out[i] = k.Plural
	}
	return out
}

// ParseKind accepts either the singular or plural spelling of a kind.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "tag", "tags":
		return KindTag, nil
	}
	for _, k := range Kinds {
		if s == string(k.Kind) || s == k.Plural {
			return k.Kind, nil
		}
	}
	return "", &ConfigError{Field: "object_kinds", Reason: fmt.Sprintf("unknown object kind %q", s)}
}

// Plural returns the plural spelling of k.
func (k Kind) Plural() string {
	if k == KindTag {
		return "tags"
	}
	if k == KindAddress {
		return "addresses"
	}
	return string(k) + "s"
}

// IsGroup reports whether objects of this kind hold members.
func (k Kind) IsGroup() bool {
	return k == KindAddressGroup || k == KindServiceGroup
}

// MemberKind returns the leaf kind a group of this kind references.
func (k Kind) MemberKind() Kind {
	switch k {
	case KindAddressGroup:
		return KindAddress
	case KindServiceGroup:
		return KindService
	}
	return ""
}
