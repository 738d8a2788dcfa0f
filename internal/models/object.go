package models

// Address is the payload of an address object. Type is one of
// ip-netmask, ip-range, fqdn or ip-wildcard.
type Address struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// AddressGroup holds either static members or a dynamic match filter.
type AddressGroup struct {
	Static        []string `json:"static,omitempty"`
	DynamicFilter string   `json:"dynamic_filter,omitempty"`
}

// Service is a tcp or udp port definition.
type Service struct {
	Protocol   string `json:"protocol"`
	Port       string `json:"port,omitempty"`
	SourcePort string `json:"source_port,omitempty"`
	Override   string `json:"override,omitempty"`
}

// ServiceGroup lists member services or service groups.
type ServiceGroup struct {
	Members []string `json:"members,omitempty"`
}

// TagValue is the payload of a tag object.
type TagValue struct {
	Color    string `json:"color,omitempty"`
	Comments string `json:"comments,omitempty"`
}

// Object is a named policy object. Exactly one of the kind-specific payloads
// is set, matching Kind. Wire fields without a typed home are kept in Extra.
type Object struct {
	Name        string   `json:"name"`
	Kind        Kind     `json:"kind"`
	OwningUnit  string   `json:"owning_unit,omitempty"`
	OriginUnit  string   `json:"origin_unit,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`

	Address      *Address      `json:"address,omitempty"`
	AddressGroup *AddressGroup `json:"address_group,omitempty"`
	Service      *Service      `json:"service,omitempty"`
	ServiceGroup *ServiceGroup `json:"service_group,omitempty"`
	Tag          *TagValue     `json:"tag,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// Owned reports whether the object is defined in the unit it was read from.
// Objects with no recorded owner are treated as local.
func (o *Object) Owned() bool {
	return o.OwningUnit == "" || o.OriginUnit == "" || o.OwningUnit == o.OriginUnit
}

// Members returns the names a group object references.
func (o *Object) Members() []string {
	switch {
	case o.AddressGroup != nil:
		return o.AddressGroup.Static
	case o.ServiceGroup != nil:
		return o.ServiceGroup.Members
	}
	return nil
}

// Clone returns a deep copy of o.
func (o Object) Clone() Object {
	c := o
	c.Tags = cloneStrings(o.Tags)
	if o.Address != nil {
		a := *o.Address
		c.Address = &a
	}
	if o.AddressGroup != nil {
		g := *o.AddressGroup
		g.Static = cloneStrings(g.Static)
		c.AddressGroup = &g
	}
	if o.Service != nil {
		s := *o.Service
		c.Service = &s
	}
	if o.ServiceGroup != nil {
		g := *o.ServiceGroup
		g.Members = cloneStrings(g.Members)
		c.ServiceGroup = &g
	}
	if o.Tag != nil {
		t := *o.Tag
		c.Tag = &t
	}
	if o.Extra != nil {
		c.Extra = make(map[string]any, len(o.Extra))
		for k, v := range o.Extra {
			c.Extra[k] = v
		}
	}
	return c
}

// Relocate returns a copy of o placed in unit.
func (o Object) Relocate(unit string) Object {
	c := o.Clone()
	c.OwningUnit = unit
	c.OriginUnit = unit
	return c
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// SecurityRule is the subset of a security policy rule the rule merger
// compares.
type SecurityRule struct {
	Name         string   `json:"name"`
	Unit         string   `json:"unit"`
	OwningUnit   string   `json:"owning_unit,omitempty"`
	Action       string   `json:"action"`
	From         []string `json:"from,omitempty"`
	Sources      []string `json:"sources,omitempty"`
	Destinations []string `json:"destinations,omitempty"`
	Services     []string `json:"services,omitempty"`
	Applications []string `json:"applications,omitempty"`
}

// Inherited reports whether the rule is defined above the unit it was read from.
func (r *SecurityRule) Inherited() bool {
	return r.OwningUnit != "" && r.OwningUnit != r.Unit
}
