package template

import (
	"encoding/json"
	"testing"
)

func mustParse(t *testing.T, raw string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("parse template: %v", err)
	}
	return m
}

func TestParseParametersScalar(t *testing.T) {
	tpl := mustParse(t, `{
		"kind": "osdu:wks:Manifest:1.0.0",
		"data": {"Name": "{{name}}", "Combo": "{{a}}-{{b}}"}
	}`)

	idx := ParseParameters(tpl)
	if len(idx) != 3 {
		t.Fatalf("expected 3 parameters, got %d: %v", len(idx), idx)
	}
	occs := idx["{{name}}"]
	if len(occs) != 1 {
		t.Fatalf("{{name}}: expected 1 occurrence, got %d", len(occs))
	}
	if got := occs[0].Path; len(got) != 2 || got[0] != "data" || got[1] != "Name" {
		t.Errorf("{{name}} path = %v", got)
	}
	if len(occs[0].Anchors) != 0 {
		t.Errorf("{{name}} should have no anchors")
	}
	for _, p := range []string{"{{a}}", "{{b}}"} {
		if len(idx[p]) != 1 {
			t.Errorf("%s: expected 1 occurrence, got %d", p, len(idx[p]))
		}
	}
}

func TestParseParametersArray(t *testing.T) {
	tpl := mustParse(t, `{
		"data": {
			"Aliases": [{"AliasName": "{{alias}}"}],
			"Grid": [[ "{{cell}}" ]]
		}
	}`)

	idx := ParseParameters(tpl)

	alias := idx["{{alias}}"]
	if len(alias) != 1 {
		t.Fatalf("{{alias}}: expected 1 occurrence, got %d", len(alias))
	}
	if len(alias[0].Anchors) != 1 {
		t.Fatalf("{{alias}}: expected depth 1, got %d", len(alias[0].Anchors))
	}
	if p := alias[0].Anchors[0].Path; len(p) != 2 || p[0] != "data" || p[1] != "Aliases" {
		t.Errorf("{{alias}} anchor path = %v", p)
	}
	if p := alias[0].Path; len(p) != 1 || p[0] != "AliasName" {
		t.Errorf("{{alias}} element path = %v", p)
	}

	cell := idx["{{cell}}"]
	if len(cell) != 1 || len(cell[0].Anchors) != 2 {
		t.Fatalf("{{cell}}: expected depth 2, got %+v", cell)
	}
	if len(cell[0].Path) != 0 {
		t.Errorf("{{cell}}: the element itself is the leaf, path = %v", cell[0].Path)
	}
}

func TestParseParametersMultiElementArrayIsLiteral(t *testing.T) {
	tpl := mustParse(t, `{"list": ["{{x}}", "{{y}}"]}`)
	idx := ParseParameters(tpl)
	if len(idx) != 0 {
		t.Errorf("multi-element arrays must not index parameters, got %v", idx)
	}
}
