package platform

import (
	"encoding/json"
	"strconv"
)

// Location keys the REST API adds to every entry. They identify where an
// object lives and are never part of its payload.
var locationKeys = []string{"@name", "@location", "@device-group", "@loc", "@overrides", "@uuid"}

// stringField safely extracts a string field, returning "" if absent.
func stringField(obj map[string]any, field string) string {
	return toString(obj[field])
}

// mapField returns a nested object, or nil.
func mapField(obj map[string]any, field string) map[string]any {
	if v, ok := obj[field].(map[string]any); ok {
		return v
	}
	return nil
}

// memberList extracts {"member": [...]} lists. Single members may be
// encoded as a bare string.
func memberList(obj map[string]any, field string) []string {
	m := mapField(obj, field)
	if m == nil {
		return nil
	}
	return toStrings(m["member"])
}

// members wraps names in the {"member": [...]} envelope.
func members(names []string) map[string]any {
	list := make([]any, len(names))
	for i, n := range names {
		list[i] = n
	}
	return map[string]any{"member": list}
}

func toStrings(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, toString(item))
		}
		return out
	}
	return nil
}

// toString converts strings and numbers to their text form.
func toString(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case int:
		return strconv.Itoa(n)
	case json.Number:
		return n.String()
	}
	return ""
}
