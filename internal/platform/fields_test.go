package platform

import (
	"encoding/json"
	"testing"
)

func TestToString(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		expect string
	}{
		{"string", "443", "443"},
		{"float64", float64(8080), "8080"},
		{"int", 22, "22"},
		{"json.Number", json.Number("99"), "99"},
		{"nil", nil, ""},
		{"bool", true, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := toString(tc.input)
			if got != tc.expect {
				t.Errorf("toString(%v) = %q, want %q", tc.input, got, tc.expect)
			}
		})
	}
}

func TestStringField(t *testing.T) {
	obj := map[string]any{
		"description": "hello",
		"port":        float64(443),
		"empty":       nil,
	}
	if got := stringField(obj, "description"); got != "hello" {
		t.Errorf("stringField(description) = %q, want %q", got, "hello")
	}
	if got := stringField(obj, "port"); got != "443" {
		t.Errorf("stringField(port) = %q, want 443", got)
	}
	if got := stringField(obj, "missing"); got != "" {
		t.Errorf("stringField(missing) = %q, want empty", got)
	}
}

func TestMemberList(t *testing.T) {
	obj := map[string]any{
		"tag":     map[string]any{"member": []any{"t1", "t2"}},
		"static":  map[string]any{"member": "only"},
		"members": "not-an-envelope",
	}
	if got := memberList(obj, "tag"); len(got) != 2 || got[0] != "t1" || got[1] != "t2" {
		t.Errorf("memberList(tag) = %v", got)
	}
	if got := memberList(obj, "static"); len(got) != 1 || got[0] != "only" {
		t.Errorf("memberList(static) = %v", got)
	}
	if got := memberList(obj, "members"); got != nil {
		t.Errorf("memberList(members) = %v, want nil", got)
	}
	if got := memberList(obj, "missing"); got != nil {
		t.Errorf("memberList(missing) = %v, want nil", got)
	}
}
