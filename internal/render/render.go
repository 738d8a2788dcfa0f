// Package render turns consolidation steps into Panorama CLI set and delete
// commands.
package render

import (
	"fmt"
	"strings"

	"github.com/rflorenc/pan-deduper/internal/consolidate"
	"github.com/rflorenc/pan-deduper/internal/models"
)

// Command ops.
const (
	OpSet    = "set"
	OpDelete = "delete"
)

// Command is one rendered CLI line and the object it touches.
type Command struct {
	Kind models.Kind `json:"kind"`
	Name string      `json:"name"`
	Unit string      `json:"unit"`
	Op   string      `json:"op"`
	Text string      `json:"text"`
}

func (c Command) String() string { return c.Text }

// Create renders the set command that creates obj in unit.
func Create(obj models.Object, unit string) (Command, error) {
	value, err := valueClause(obj)
	if err != nil {
		return Command{}, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "set %s %s %s", scope(unit), obj.Kind, quote(obj.Name))
	if len(obj.Tags) > 0 && obj.Kind != models.KindTag {
		b.WriteString(" tag " + multi(obj.Tags))
	}
	if obj.Description != "" {
		b.WriteString(" description " + quote(obj.Description))
	}
	if value != "" {
		b.WriteString(" " + value)
	}
	return Command{Kind: obj.Kind, Name: obj.Name, Unit: unit, Op: OpSet, Text: b.String()}, nil
}

// Delete renders the command that deletes an object from unit.
func Delete(kind models.Kind, name, unit string) Command {
	return Command{
		Kind: kind,
		Name: name,
		Unit: unit,
		Op:   OpDelete,
		Text: fmt.Sprintf("delete %s %s %s", scope(unit), kind, quote(name)),
	}
}

// Plan renders every step of a plan in execution order.
func Plan(plan *consolidate.Plan) ([]Command, error) {
	var out []Command
	for _, step := range plan.Steps() {
		switch step.Op {
		case consolidate.OpCreate:
			if step.Object == nil {
				return nil, &models.SourceDataError{Unit: step.Unit, Kind: step.Kind, Fragment: step.Name, Err: fmt.Errorf("create step without payload")}
			}
			cmd, err := Create(*step.Object, step.Unit)
			if err != nil {
				return nil, err
			}
			out = append(out, cmd)
		case consolidate.OpDelete:
			out = append(out, Delete(step.Kind, step.Name, step.Unit))
		}
	}
	return out, nil
}

func valueClause(obj models.Object) (string, error) {
	missing := func() error {
		return &models.SourceDataError{Unit: obj.OwningUnit, Kind: obj.Kind, Fragment: obj.Name, Err: fmt.Errorf("no %s payload", obj.Kind)}
	}
	switch obj.Kind {
	case models.KindAddress:
		if obj.Address == nil || obj.Address.Value == "" {
			return "", missing()
		}
		return obj.Address.Type + " " + obj.Address.Value, nil
	case models.KindAddressGroup:
		switch {
		case obj.AddressGroup == nil:
			return "", missing()
		case obj.AddressGroup.DynamicFilter != "":
			return "dynamic filter " + quote(obj.AddressGroup.DynamicFilter), nil
		case len(obj.AddressGroup.Static) > 0:
			return "static " + multi(obj.AddressGroup.Static), nil
		}
		return "", missing()
	case models.KindService:
		if obj.Service == nil || obj.Service.Protocol == "" {
			return "", missing()
		}
		v := "protocol " + obj.Service.Protocol
		if obj.Service.SourcePort != "" {
			v += " source-port " + obj.Service.SourcePort
		}
		if obj.Service.Port != "" {
			v += " port " + obj.Service.Port
		}
		return v, nil
	case models.KindServiceGroup:
		if obj.ServiceGroup == nil || len(obj.ServiceGroup.Members) == 0 {
			return "", missing()
		}
		return "members " + multi(obj.ServiceGroup.Members), nil
	case models.KindTag:
		if obj.Tag == nil {
			return "", nil
		}
		var parts []string
		if obj.Tag.Color != "" {
			parts = append(parts, "color "+obj.Tag.Color)
		}
		if obj.Tag.Comments != "" {
			parts = append(parts, "comments "+quote(obj.Tag.Comments))
		}
		return strings.Join(parts, " "), nil
	}
	return "", &models.ConfigError{Field: "object_kinds", Reason: fmt.Sprintf("cannot render kind %q", obj.Kind)}
}

func scope(unit string) string {
	if unit == models.SharedUnit {
		return "shared"
	}
	return "device-group " + unit
}

func quote(s string) string {
	return "'" + s + "'"
}

// multi renders a single value as 'v' and several as [ 'a' 'b' ].
func multi(values []string) string {
	if len(values) == 1 {
		return quote(values[0])
	}
	q := make([]string, len(values))
	for i, v := range values {
		q[i] = quote(v)
	}
	return "[ " + strings.Join(q, " ") + " ]"
}
