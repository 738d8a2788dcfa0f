package platform

import (
	"encoding/json"
	"errors"

	"github.com/rflorenc/pan-deduper/internal/models"
)

var errNoName = errors.New("object has no name")

var addressTypes = []string{"ip-netmask", "ip-range", "fqdn", "ip-wildcard"}

// consumed lists the wire keys each kind maps onto typed fields.
var consumed = map[models.Kind][]string{
	models.KindAddress:      append([]string{"description", "tag"}, addressTypes...),
	models.KindAddressGroup: {"description", "tag", "static", "dynamic"},
	models.KindService:      {"description", "tag", "protocol"},
	models.KindServiceGroup: {"tag", "members"},
	models.KindTag:          {"color", "comments"},
}

// ObjectFromWire maps a REST API entry onto a typed object. unit is the
// scope the entry was read from.
func ObjectFromWire(kind models.Kind, unit string, entry map[string]any) (models.Object, error) {
	name := stringField(entry, "@name")
	if name == "" {
		frag, _ := json.Marshal(entry)
		return models.Object{}, &models.SourceDataError{Unit: unit, Kind: kind, Fragment: string(frag), Err: errNoName}
	}

	obj := models.Object{
		Name:        name,
		Kind:        kind,
		OriginUnit:  unit,
		OwningUnit:  owningUnit(entry),
		Description: stringField(entry, "description"),
		Tags:        memberList(entry, "tag"),
	}

	switch kind {
	case models.KindAddress:
		for _, t := range addressTypes {
			if v := stringField(entry, t); v != "" {
				obj.Address = &models.Address{Type: t, Value: v}
				break
			}
		}
	case models.KindAddressGroup:
		obj.AddressGroup = &models.AddressGroup{Static: memberList(entry, "static")}
		if dyn := mapField(entry, "dynamic"); dyn != nil {
			obj.AddressGroup.DynamicFilter = stringField(dyn, "filter")
		}
	case models.KindService:
		obj.Service = serviceFromWire(mapField(entry, "protocol"))
	case models.KindServiceGroup:
		obj.ServiceGroup = &models.ServiceGroup{Members: memberList(entry, "members")}
	case models.KindTag:
		obj.Tag = &models.TagValue{Color: stringField(entry, "color"), Comments: stringField(entry, "comments")}
	}

	for k, v := range entry {
		if isLocationKey(k) || contains(consumed[kind], k) {
			continue
		}
		if obj.Extra == nil {
			obj.Extra = make(map[string]any)
		}
		obj.Extra[k] = v
	}
	return obj, nil
}

func serviceFromWire(protocol map[string]any) *models.Service {
	svc := &models.Service{}
	for _, p := range []string{"tcp", "udp"} {
		body := mapField(protocol, p)
		if body == nil {
			continue
		}
		svc.Protocol = p
		svc.Port = stringField(body, "port")
		svc.SourcePort = stringField(body, "source-port")
		if ov := mapField(body, "override"); ov != nil {
			for k := range ov {
				svc.Override = k
			}
		}
		break
	}
	return svc
}

// ObjectToWire maps a typed object back to a REST API entry, without any
// location keys.
func ObjectToWire(obj models.Object) map[string]any {
	entry := map[string]any{"@name": obj.Name}
	for k, v := range obj.Extra {
		entry[k] = v
	}
	if obj.Description != "" {
		entry["description"] = obj.Description
	}
	if len(obj.Tags) > 0 {
		entry["tag"] = members(obj.Tags)
	}

	switch {
	case obj.Address != nil:
		entry[obj.Address.Type] = obj.Address.Value
	case obj.AddressGroup != nil:
		if obj.AddressGroup.DynamicFilter != "" {
			entry["dynamic"] = map[string]any{"filter": obj.AddressGroup.DynamicFilter}
		} else {
			entry["static"] = members(obj.AddressGroup.Static)
		}
	case obj.Service != nil:
		body := map[string]any{}
		if obj.Service.Port != "" {
			body["port"] = obj.Service.Port
		}
		if obj.Service.SourcePort != "" {
			body["source-port"] = obj.Service.SourcePort
		}
		if obj.Service.Override != "" {
			body["override"] = map[string]any{obj.Service.Override: map[string]any{}}
		}
		entry["protocol"] = map[string]any{obj.Service.Protocol: body}
	case obj.ServiceGroup != nil:
		entry["members"] = members(obj.ServiceGroup.Members)
	case obj.Tag != nil:
		if obj.Tag.Color != "" {
			entry["color"] = obj.Tag.Color
		}
		if obj.Tag.Comments != "" {
			entry["comments"] = obj.Tag.Comments
		}
	}
	return entry
}

func owningUnit(entry map[string]any) string {
	if stringField(entry, "@location") == models.SharedUnit {
		return models.SharedUnit
	}
	if loc := stringField(entry, "@loc"); loc != "" {
		return loc
	}
	return stringField(entry, "@device-group")
}

func isLocationKey(k string) bool {
	return contains(locationKeys, k)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
