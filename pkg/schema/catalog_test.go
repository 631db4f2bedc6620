package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeSchema(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func setupCatalog(t *testing.T) *Catalog {
	t.Helper()
	dir := t.TempDir()

	writeSchema(t, dir, "well.json", `{
		"$id": "https://example.com/json/master-data/well/1",
		"type": "object",
		"properties": {
			"kind": {"type": "string"},
			"data": {
				"type": "object",
				"properties": {"Name": {"type": "string"}},
				"required": ["Name"]
			}
		},
		"required": ["kind", "data"]
	}`)
	writeSchema(t, dir, filepath.Join("nested", "well-v2.json"), `{
		"$id": "https://example.com/json/master-data/well/2",
		"type": "object",
		"properties": {
			"kind": {"const": "{{NS}}:wks:well:2"}
		}
	}`)
	writeSchema(t, dir, "not-a-schema.txt", `ignored`)

	cat, err := Load(dir, "{{NS}}", "opendes")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cat
}

func TestCatalogLoad(t *testing.T) {
	cat := setupCatalog(t)

	// Two versioned ids plus the versionless alias.
	if cat.Len() != 3 {
		t.Fatalf("Len = %d, ids = %v", cat.Len(), cat.IDs())
	}
	if _, ok := cat.Get("https://example.com/json/master-data/well/1"); !ok {
		t.Error("versioned id missing")
	}

	alias, ok := cat.Get("https://example.com/json/master-data/well/")
	if !ok {
		t.Fatal("versionless alias missing")
	}
	v2, _ := cat.Get("https://example.com/json/master-data/well/2")
	if alias["$id"] != v2["$id"] {
		t.Error("alias must point at the highest version")
	}
}

func TestCatalogNamespaceRewrite(t *testing.T) {
	cat := setupCatalog(t)
	doc, _ := cat.Get("https://example.com/json/master-data/well/2")
	kind := doc["properties"].(map[string]any)["kind"].(map[string]any)
	if kind["const"] != "opendes:wks:well:2" {
		t.Errorf("namespace not rewritten: %v", kind["const"])
	}
}

func TestCatalogValidate(t *testing.T) {
	cat := setupCatalog(t)
	id := "https://example.com/json/master-data/well/1"

	ok := map[string]any{"kind": "k", "data": map[string]any{"Name": "A-1"}}
	if err := cat.Validate(ok, id); err != nil {
		t.Errorf("valid document rejected: %v", err)
	}

	bad := map[string]any{"kind": "k", "data": map[string]any{}}
	if err := cat.Validate(bad, id); err == nil {
		t.Error("document missing a required field must fail")
	}

	if err := cat.Validate(ok, "https://example.com/nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRelaxTopLevelResource(t *testing.T) {
	dir := t.TempDir()
	writeSchema(t, dir, "resource.json", `{
		"$id": "https://example.com/json/resource/1",
		"type": "object",
		"properties": {
			"ResourceHomeRegionID": {"type": "string"},
			"ResourceID": {"pattern": "^srn:.*:[0-9]+$"}
		},
		"required": ["ResourceID"],
		"additionalProperties": false
	}`)

	cat, err := Load(dir, "", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	doc, _ := cat.Get("https://example.com/json/resource/1")
	if _, ok := doc["required"]; ok {
		t.Error("required must be dropped from top-level resource schemas")
	}
	if _, ok := doc["additionalProperties"]; ok {
		t.Error("additionalProperties must be dropped")
	}
	pattern := doc["properties"].(map[string]any)["ResourceID"].(map[string]any)["pattern"]
	if pattern != "^srn:.*:[0-9]*$" {
		t.Errorf("pattern not relaxed: %v", pattern)
	}
}
